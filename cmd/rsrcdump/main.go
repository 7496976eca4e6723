// Command rsrcdump walks a PE image's resource tree, extracts every icon
// group it finds, and writes each icon's decoded pixels out as a raw
// RGBA8 dump (width/height encoded in the filename, since this module has
// no PNG/BMP encoder to target).
package main

import (
	"bytes"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/laenix/binms/bitmap"
	"github.com/laenix/binms/icon"
	"github.com/laenix/binms/pe"
)

const (
	resourceTypeIcon      = 3
	resourceTypeGroupIcon = 14
)

func main() {
	var filePath, outputDir string
	flag.StringVar(&filePath, "file", "", "path to the PE image (required)")
	flag.StringVar(&outputDir, "output", ".", "directory to write decoded icons into")
	flag.Parse()

	if filePath == "" {
		fmt.Println("usage:")
		fmt.Printf("  %s -file=<path> [-output=<dir>]\n", os.Args[0])
		os.Exit(1)
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		fmt.Printf("reading %s: %v\n", filePath, err)
		os.Exit(1)
	}

	file, err := pe.Read(bytes.NewReader(data))
	if err != nil {
		fmt.Printf("reading PE image: %v\n", err)
		os.Exit(1)
	}

	dir, ok := file.OptionalHeader.DataDirectoryEntry(pe.DirResourceTable)
	if !ok || dir.VirtualAddress == 0 {
		fmt.Println("image has no resource directory")
		return
	}

	root, err := pe.ReadResourceTree(bytes.NewReader(data), dir, &file.Sections)
	if err != nil {
		fmt.Printf("reading resource tree: %v\n", err)
		os.Exit(1)
	}

	icons := collectLeafData(root.Children[pe.ResourceIdentifier{ID: resourceTypeIcon}])
	groups := collectLeafData(root.Children[pe.ResourceIdentifier{ID: resourceTypeGroupIcon}])

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		fmt.Printf("creating output directory: %v\n", err)
		os.Exit(1)
	}

	groupIDs := make([]uint32, 0, len(groups))
	for groupID := range groups {
		groupIDs = append(groupIDs, groupID)
	}
	sort.Slice(groupIDs, func(i, j int) bool { return groupIDs[i] < groupIDs[j] })

	dumped := 0
	for _, groupID := range groupIDs {
		groupData := groups[groupID]
		group, err := icon.ParseGroup(groupData)
		if err != nil {
			fmt.Printf("parsing icon group #%d: %v\n", groupID, err)
			continue
		}
		for _, entry := range group.Icons {
			iconData, ok := icons[entry.ID]
			if !ok {
				fmt.Printf("icon group #%d references missing icon #%d\n", groupID, entry.ID)
				continue
			}
			bmp, _, err := bitmap.Parse(iconData, true)
			if err != nil {
				fmt.Printf("decoding icon #%d: %v\n", entry.ID, err)
				continue
			}
			pixels := bmp.ToRGBA8()
			name := fmt.Sprintf("icon-%d_%dx%d.rgba", entry.ID, bmp.Header.Width, len(bmp.Rows))
			outPath := filepath.Join(outputDir, name)
			if err := os.WriteFile(outPath, pixels, 0644); err != nil {
				fmt.Printf("writing %s: %v\n", outPath, err)
				continue
			}
			fmt.Printf("wrote %s (%d bytes)\n", outPath, len(pixels))
			dumped++
		}
	}

	fmt.Printf("done, %d icons dumped\n", dumped)
}

// collectLeafData flattens a two-level id->language resource subtree
// into id->first-language's-data, which is all a typical single-language
// resource-only DLL needs.
func collectLeafData(typeNode *pe.ResourceNode) map[uint32][]byte {
	result := make(map[uint32][]byte)
	if typeNode == nil {
		return result
	}
	for _, idChild := range typeNode.SortedChildren() {
		if idChild.Node == nil {
			continue
		}
		for _, langChild := range idChild.Node.SortedChildren() {
			if langChild.Node != nil && langChild.Node.Data != nil && langChild.Node.Data.Data != nil {
				result[idChild.Key.ID] = langChild.Node.Data.Data
				break
			}
		}
	}
	return result
}
