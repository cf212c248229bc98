package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/gyaneshwarpardhi/automation/internal/action"
	"github.com/gyaneshwarpardhi/automation/internal/condition"
	"github.com/gyaneshwarpardhi/automation/internal/engine"
	"github.com/gyaneshwarpardhi/automation/internal/kv"
	"github.com/gyaneshwarpardhi/automation/internal/rule"
	"github.com/gyaneshwarpardhi/automation/internal/store"
)

func newCatalogCommand(opts *rootOptions) *cobra.Command {
	var templates bool
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "List the trigger and action kinds rules can use",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, cfg, err := loadConfig(opts, nil)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			return writeCatalog(cmd.OutOrStdout(), templates, condition.Units(cfg.Preferences.Units))
		},
	}
	cmd.Flags().BoolVar(&templates, "templates", false, "print a default document for every kind, in preferences.units")
	return cmd
}

func writeCatalog(w io.Writer, templates bool, units condition.Units) error {
	if !templates {
		fmt.Fprintln(w, "Triggers:")
		for _, k := range condition.Kinds() {
			fmt.Fprintln(w, "  "+k)
		}
		fmt.Fprintln(w, "Actions:")
		for _, k := range action.Kinds() {
			fmt.Fprintln(w, "  "+k)
		}
		return nil
	}

	for _, k := range condition.Kinds() {
		t, err := condition.TemplateIn(k, units)
		if err != nil {
			return err
		}
		s, err := condition.Encode(t)
		if err != nil {
			return err
		}
		fmt.Fprintln(w, s)
	}
	for _, k := range action.Kinds() {
		a, err := action.TemplateIn(k, units)
		if err != nil {
			return err
		}
		s, err := action.Encode(a)
		if err != nil {
			return err
		}
		fmt.Fprintln(w, s)
	}
	return nil
}

func newExportCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "export",
		Short: "Print the stored rule document (the seed rule when nothing is stored)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, cfg, err := loadConfig(opts, nil)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			kvs, err := kv.Open(cmd.Context(), kv.Config{Backend: cfg.Storage.Backend, Path: cfg.Storage.Path})
			if err != nil {
				return fmt.Errorf("open storage: %w", err)
			}
			defer kvs.Close()
			return exportRules(cmd, kvs, cfg.Storage.Key)
		},
	}
}

func exportRules(cmd *cobra.Command, kvs kv.Store, key string) error {
	st := store.New(nil)
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), nil))
	p := engine.NewPersister(kvs, key, st, logger)
	if err := p.Load(cmd.Context()); err != nil {
		return err
	}
	docs := make([]rule.Document, 0, st.Size())
	for _, r := range st.Snapshot() {
		d, err := rule.ToDocument(r)
		if err != nil {
			return err
		}
		docs = append(docs, d)
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(docs)
}
