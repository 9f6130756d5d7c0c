package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ethpandaops/pointerbridge/db"
	"github.com/ethpandaops/pointerbridge/types"
	"github.com/ethpandaops/pointerbridge/utils"
)

var pointersCmd = &cobra.Command{
	Use:   "pointers",
	Short: "List the pointer links stored in the database",
	RunE:  runPointers,
}

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Apply the embedded database schema",
	Long:  "Apply all pending migrations of the embedded database schema to the configured database",
	RunE:  runSchema,
}

func init() {
	rootCmd.AddCommand(pointersCmd)
	rootCmd.AddCommand(schemaCmd)

	pointersCmd.Flags().String("config", "", "Path to the bridge config file")
	schemaCmd.Flags().String("config", "", "Path to the bridge config file")
	schemaCmd.Flags().BoolP("debug", "d", false, "Enable debug mode")
}

func openDatabase(cmd *cobra.Command) error {
	configPath, _ := cmd.Flags().GetString("config")

	cfg := &types.Config{}
	if err := utils.ReadConfig(cfg, configPath); err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}
	utils.Config = cfg

	db.MustInitDB()
	return nil
}

func runPointers(cmd *cobra.Command, args []string) error {
	if err := openDatabase(cmd); err != nil {
		return err
	}
	defer db.MustCloseDB()

	links, err := db.GetPointerLinks()
	if err != nil {
		return fmt.Errorf("error loading pointer links: %w", err)
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "POINTEE\tPOINTER\tVERSION\tCREATED")
	for _, link := range links {
		fmt.Fprintf(w, "%v\t%v\t%v\t%v\n", link.Pointee, common.BytesToAddress(link.PointerAddress).Hex(), link.Version, time.UnixMilli(link.Created).UTC().Format(time.RFC3339))
	}
	return w.Flush()
}

func runSchema(cmd *cobra.Command, args []string) error {
	debug, _ := cmd.Flags().GetBool("debug")
	if debug {
		logrus.SetLevel(logrus.DebugLevel)
	}

	if err := openDatabase(cmd); err != nil {
		return err
	}
	defer db.MustCloseDB()

	logrus.Info("database schema is up to date")
	return nil
}
