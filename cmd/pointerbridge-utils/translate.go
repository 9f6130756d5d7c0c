package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ethpandaops/pointerbridge/addrmap"
	"github.com/ethpandaops/pointerbridge/registry"
)

var translateCmd = &cobra.Command{
	Use:   "translate <address>",
	Short: "Translate an address between the native and EVM forms",
	Args:  cobra.ExactArgs(1),
	RunE:  runTranslate,
}

var pointerAddressCmd = &cobra.Command{
	Use:   "pointer-address <native contract>",
	Short: "Print the pointer address a native contract is registered under",
	Args:  cobra.ExactArgs(1),
	RunE:  runPointerAddress,
}

func init() {
	rootCmd.AddCommand(translateCmd)
	rootCmd.AddCommand(pointerAddressCmd)

	translateCmd.Flags().String("prefix", "wasm", "Bech32 prefix of native addresses")
	pointerAddressCmd.Flags().String("prefix", "wasm", "Bech32 prefix of native addresses")
}

func runTranslate(cmd *cobra.Command, args []string) error {
	prefix, _ := cmd.Flags().GetString("prefix")
	translator := addrmap.NewTranslator(prefix)

	if translator.IsNative(args[0]) {
		address, err := translator.ToEVM(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), address.Hex())
		return nil
	}

	address, err := addrmap.ParseEVM(args[0])
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), translator.ToNative(address))
	return nil
}

func runPointerAddress(cmd *cobra.Command, args []string) error {
	prefix, _ := cmd.Flags().GetString("prefix")
	translator := addrmap.NewTranslator(prefix)

	pointee, _, err := translator.DecodeContract(args[0])
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), registry.PointerAddress(pointee).Hex())
	return nil
}
