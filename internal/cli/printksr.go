package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"wan24setup/internal/keys"
	"wan24setup/internal/stream"
)

func init() {
	printKsrCmd.SilenceErrors = true
	printKsrCmd.SilenceUsage = true
	rootCmd.AddCommand(printKsrCmd)
}

var printKsrCmd = &cobra.Command{
	Use:   "printKsr <ksr-path>",
	Short: "Dump a key signing request and validate its self-signature",
	Args:  cobra.ExactArgs(1),
	RunE:  runPrintKsr,
}

func runPrintKsr(cmd *cobra.Command, args []string) error {
	f, err := openFile(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	ksr, err := keys.DeserializeKSR(stream.NewReader(f))
	if err != nil {
		return err
	}

	// §9's "at minimum" validation: mandatory attributes present and
	// syntactically valid, self-signature verifies. DeserializeKSR does
	// not check attributes; VerifySelfSignature runs validateAttributes
	// first (ErrAttributeMissing) and then checks the self-signature
	// (ErrKsrSelfSigInvalid), both of which map to exit 2.
	if err := ksr.VerifySelfSignature(); err != nil {
		return err
	}

	fmt.Printf("purpose: %s\n", ksr.Purpose)
	fmt.Println("attributes:")
	keysSorted := make([]string, 0, len(ksr.Attributes))
	for k := range ksr.Attributes {
		keysSorted = append(keysSorted, k)
	}
	sort.Strings(keysSorted)
	for _, k := range keysSorted {
		fmt.Printf("  %s = %s\n", k, ksr.Attributes[k])
	}
	fmt.Println("self-signature: valid")
	return nil
}
