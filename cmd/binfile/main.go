// Command binfile identifies a file's container format and lists its
// contents: member paths for archive-like containers, the decompressed
// size for single-file compressors, or the exported symbol table for
// executables.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/laenix/binms/container"
)

func main() {
	var filePath string
	flag.StringVar(&filePath, "file", "", "path to the file to identify (required)")
	flag.Parse()

	if filePath == "" {
		fmt.Println("usage:")
		fmt.Printf("  %s -file=<path>\n", os.Args[0])
		os.Exit(1)
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		fmt.Printf("reading %s: %v\n", filePath, err)
		os.Exit(1)
	}

	identified, err := container.InterpretFile(data)
	if err != nil {
		fmt.Printf("identifying %s: %v\n", filePath, err)
		os.Exit(1)
	}

	switch f := identified.(type) {
	case container.MultiFileContainer:
		paths, err := f.ListFiles()
		if err != nil {
			fmt.Printf("listing files: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("multi-file container, %d entries:\n", len(paths))
		for _, p := range paths {
			fmt.Printf("  %s\n", p)
		}
	case container.SingleFileContainer:
		payload, err := f.ReadFile()
		if err != nil {
			fmt.Printf("decompressing payload: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("single-file container, decompressed size: %d bytes\n", len(payload))
	case container.SymbolExporter:
		symbols, err := f.ListSymbols()
		if err != nil {
			fmt.Printf("listing symbols: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("symbol exporter, %d exported symbols:\n", len(symbols))
		for _, s := range symbols {
			printSymbol(s)
		}
	case container.Unidentified:
		fmt.Println("unrecognized container format")
		os.Exit(1)
	}
}

func printSymbol(s container.Symbol) {
	switch {
	case s.Name != nil && s.Ordinal != nil:
		fmt.Printf("  %s (ordinal %d)\n", *s.Name, *s.Ordinal)
	case s.Name != nil:
		fmt.Printf("  %s\n", *s.Name)
	case s.Ordinal != nil:
		fmt.Printf("  #%d\n", *s.Ordinal)
	}
}
