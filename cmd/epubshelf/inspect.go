package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/yuanying/epubshelf/internal/epub"
)

func newInspectCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect <epub> [entry...]",
		Short: "Print the package structure of an EPUB without ingesting it",
		Long: `inspect opens an EPUB and prints its package document location,
conformance warnings, metadata, manifest, spine and navigation documents.
Named entries are printed verbatim after the summary.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := readLoggingOptions(v, cmd); err != nil {
				return err
			}
			return inspectEPUB(args[0], args[1:], v.GetBool("entries"), cmd.OutOrStdout())
		},
	}
	cmd.Flags().Bool("entries", false, "List every archive entry")
	return cmd
}

func inspectEPUB(path string, dump []string, listEntries bool, out io.Writer) error {
	reader, err := epub.Open(path)
	if err != nil {
		return err
	}
	defer reader.Close()

	fmt.Fprintf(out, "File:     %s\n", path)
	fmt.Fprintf(out, "OPF Path: %s\n", reader.OPFPath())
	for _, w := range reader.Warnings() {
		fmt.Fprintf(out, "Warning:  %s\n", w)
	}

	data, err := reader.ReadFile(reader.OPFPath())
	if err != nil {
		return fmt.Errorf("failed to read OPF: %w", err)
	}
	opf, err := epub.ParseOPF(data, reader.OPFPath())
	if err != nil {
		return err
	}

	md := opf.Metadata
	fmt.Fprintf(out, "\n--- Metadata (EPUB %s) ---\n", opf.Version)
	fmt.Fprintf(out, "Title:    %s\n", md.Title)
	fmt.Fprintf(out, "Language: %s\n", md.Language)
	for _, c := range md.Creators {
		role := c.Role
		if role == "" {
			role = "-"
		}
		fmt.Fprintf(out, "Creator:  %s (%s)\n", c.Name, role)
	}
	for _, id := range md.Identifiers {
		fmt.Fprintf(out, "ID:       %s [%s]\n", id.Value, id.Scheme)
	}

	fmt.Fprintf(out, "\n--- Manifest (%d items) ---\n", len(opf.ManifestOrder))
	for _, id := range opf.ManifestOrder {
		item := opf.Manifest[id]
		missing := ""
		if !reader.Has(item.Href) {
			missing = "  MISSING"
		}
		fmt.Fprintf(out, "  %-20s %-28s %s%s\n", item.ID, item.MediaType, item.Href, missing)
	}

	fmt.Fprintf(out, "\n--- Spine (%d items) ---\n", len(opf.Spine))
	for i, ref := range opf.Spine {
		href := "(not in manifest)"
		if item, ok := opf.Manifest[ref.IDRef]; ok {
			href = item.Href
		}
		linear := ""
		if !ref.Linear {
			linear = "  linear=no"
		}
		fmt.Fprintf(out, "  %3d %-20s %s%s\n", i, ref.IDRef, href, linear)
	}

	fmt.Fprintln(out, "\n--- Navigation ---")
	nav, err := epub.LoadNav(reader, opf)
	fmt.Fprintf(out, "Nav: %s%s\n", orNone(opf.NavPath), errSuffix(err))
	if nav != nil {
		writeNavPoints(out, nav.NavPoints, 1)
	}
	ncx, err := epub.LoadNCX(reader, opf)
	fmt.Fprintf(out, "NCX: %s%s\n", orNone(opf.NCXPath), errSuffix(err))
	if ncx != nil {
		writeNavPoints(out, ncx.NavPoints, 1)
	}
	if cover := opf.ResolveCover(reader); cover != nil {
		fmt.Fprintf(out, "Cover: %s (%s)\n", cover.Href, cover.DetectionMethod)
	} else {
		fmt.Fprintln(out, "Cover: none")
	}

	if listEntries {
		fmt.Fprintln(out, "\n--- Entries ---")
		for _, name := range reader.Entries() {
			fmt.Fprintf(out, "  %s\n", name)
		}
	}

	for _, name := range dump {
		content, err := reader.ReadFile(name)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "\n--- %s (%d bytes) ---\n%s\n", name, len(content), strings.TrimRight(string(content), "\n"))
	}
	return nil
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}

// writeNavPoints prints a navigation tree, one entry per line with its NCX
// play order when declared.
func writeNavPoints(out io.Writer, points []epub.NavPoint, depth int) {
	for _, np := range points {
		order := ""
		if np.PlayOrder > 0 {
			order = fmt.Sprintf("[%d] ", np.PlayOrder)
		}
		target := np.ContentPath
		if target == "" {
			target = "(unresolvable)"
		} else if np.Fragment != "" {
			target += "#" + np.Fragment
		}
		fmt.Fprintf(out, "%s%s%s -> %s\n", strings.Repeat("  ", depth), order, np.Label, target)
		writeNavPoints(out, np.Children, depth+1)
	}
}

func errSuffix(err error) string {
	if err == nil {
		return ""
	}
	return fmt.Sprintf(" (unusable: %v)", err)
}
