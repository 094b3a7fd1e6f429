/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/wandertours/apiserver/config"
	"github.com/wandertours/apiserver/internal/db"
	"github.com/wandertours/apiserver/internal/store"
	"github.com/wandertours/apiserver/types"
)

var (
	seedFile       string
	seedCollection string
	seedDelete     bool
)

var seedSchemas = map[string]types.Schema{
	"tours":    types.TourSchema,
	"users":    types.UserSchema,
	"reviews":  types.ReviewSchema,
	"bookings": types.BookingSchema,
}

// seedCmd represents the seed command.
var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Import development data",
	Long: `Imports a JSON array of documents into one collection. Usage:

	apiserver seed --collection tours --file dev-data/tours.json
	apiserver seed --collection tours --delete
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		schema, ok := seedSchemas[seedCollection]
		if !ok {
			return fmt.Errorf("unknown collection %q", seedCollection)
		}

		cfg := config.LoadConfig()
		ctx := cmd.Context()

		client, database, err := db.Connect(ctx, cfg)
		if err != nil {
			return fmt.Errorf("connect failed: %w", err)
		}
		defer func() {
			_ = client.Disconnect(ctx)
		}()

		coll := store.NewCollection[bson.M](database, seedCollection)

		if seedDelete {
			if err := coll.DeleteMany(ctx, nil); err != nil {
				return fmt.Errorf("delete failed: %w", err)
			}
			fmt.Printf("deleted all documents from %s\n", seedCollection)
			if seedFile == "" {
				return nil
			}
		}

		data, err := os.ReadFile(seedFile)
		if err != nil {
			return err
		}
		var docs []map[string]any
		if err := json.Unmarshal(data, &docs); err != nil {
			return fmt.Errorf("parse %s failed: %w", seedFile, err)
		}

		prepared := make([]any, 0, len(docs))
		for i, doc := range docs {
			if err := schema.Coerce(doc); err != nil {
				return fmt.Errorf("document %d: %w", i, err)
			}
			schema.ApplyDefaults(doc)
			prepared = append(prepared, doc)
		}

		if err := coll.InsertMany(ctx, prepared); err != nil {
			return fmt.Errorf("insert failed: %w", err)
		}
		fmt.Printf("imported %d documents into %s\n", len(prepared), seedCollection)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(seedCmd)
	seedCmd.Flags().StringVar(&seedFile, "file", "", "path to a JSON array of documents")
	seedCmd.Flags().StringVar(&seedCollection, "collection", "tours", "target collection")
	seedCmd.Flags().BoolVar(&seedDelete, "delete", false, "delete all documents first")
}
