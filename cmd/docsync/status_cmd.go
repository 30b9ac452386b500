package main

import (
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/openmined/docsync/internal/config"
	"github.com/openmined/docsync/internal/discovery"
	"github.com/openmined/docsync/internal/engine"
	"github.com/openmined/docsync/internal/store"
	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status [target...]",
		Short: "Show the fingerprint store of each target",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, closeLogs, err := prepare(cmd)
			if err != nil {
				return err
			}
			defer closeLogs()

			names, err := selectTargets(cfg, args)
			if err != nil {
				return err
			}

			discover, _ := cmd.Flags().GetBool("discover")
			var provider discovery.SessionProvider
			if discover {
				provider = discovery.NewPortalProvider(cfg.SessionFile, cfg.PageTimeout)
			}

			out := cmd.OutOrStdout()
			for _, name := range names {
				t, _ := cfg.Target(name)
				if err := printStoreStatus(out, t); err != nil {
					fmt.Fprintf(out, "  %s %v\n", red("Store"), err)
				}
				if discover {
					printDiscovery(cmd, out, provider, t)
				}
				fmt.Fprintln(out)
			}
			return nil
		},
	}
	cmd.Flags().Bool("discover", false, "also list the documents currently published on the portal")
	return cmd
}

func printStoreStatus(w io.Writer, t *config.Target) error {
	fmt.Fprintf(w, "%s %s\n", cyan(t.Name), t.URL)
	fmt.Fprintf(w, "  %-10s %s\n", "Store", t.StorePath)
	fmt.Fprintf(w, "  %-10s %s\n", "Output", t.OutputDir)
	fmt.Fprintf(w, "  %-10s %s / %s\n", "Modes", t.WriteMode, t.ResponseMode)

	s, err := store.NewFileStore(t.StorePath).Load()
	if err != nil {
		return err
	}

	mode := engine.DecideMode(s)
	fmt.Fprintf(w, "  %-10s %s\n", "Next run", green(mode.String()))
	fmt.Fprintf(w, "  %-10s %d (%d writes)\n", "Documents", s.Len(), s.Counter())

	var last time.Time
	for _, rec := range s.Records() {
		if rec.ObservedAt.After(last) {
			last = rec.ObservedAt
		}
	}
	if !last.IsZero() {
		fmt.Fprintf(w, "  %-10s %s\n", "Observed", humanize.Time(last))
	}
	return nil
}

func printDiscovery(cmd *cobra.Command, w io.Writer, provider discovery.SessionProvider, t *config.Target) {
	session, err := provider.Open(cmd.Context())
	if err != nil {
		fmt.Fprintf(w, "  %-10s %s %v\n", "Portal", red("error"), err)
		return
	}
	defer session.Close()

	links, err := discovery.DiscoverDocumentLinks(cmd.Context(), session, t.URL, t.SectionPattern, t.DocumentSelector)
	if err != nil {
		fmt.Fprintf(w, "  %-10s %s %v\n", "Portal", red("error"), err)
		return
	}

	s, err := store.NewFileStore(t.StorePath).Load()
	if err != nil {
		s = store.New()
	}

	fmt.Fprintf(w, "  %-10s %d published\n", "Portal", len(links))
	for _, l := range links {
		marker := green("=")
		if _, ok := s.Get(l.ID); !ok {
			marker = yellow("+")
		}
		fmt.Fprintf(w, "    %s %s\n", marker, l.ID)
	}
}
