// Package report exports the course outline as a spreadsheet.
package report

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/p-n-ai/ledger/internal/content"
	"github.com/p-n-ai/ledger/internal/progression"
)

// SheetName is the worksheet the outline is written to.
const SheetName = "Outline"

// Header is the first row of the outline.
var Header = []string{"Chapter", "Zone", "#", "Title", "Type", "XP", "Status"}

// ScriptsSheet holds the learner's saved challenge scripts.
const ScriptsSheet = "Scripts"

// ScriptsHeader is the first row of the scripts sheet.
var ScriptsHeader = []string{"Title", "Runtime", "Script"}

// StatusFunc classifies a node. A nil StatusFunc leaves the column empty.
type StatusFunc func(progression.Position) progression.Status

// WriteOutline writes one row per node of tree to w as an xlsx workbook.
// scripts maps challenge titles to saved scripts; when any match a
// challenge they are written to a second sheet in course order.
func WriteOutline(w io.Writer, tree *content.Tree, status StatusFunc, scripts map[string]string) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), SheetName); err != nil {
		return fmt.Errorf("naming sheet: %w", err)
	}

	header := make([]any, len(Header))
	for i, h := range Header {
		header[i] = h
	}
	if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("creating header style: %w", err)
	}
	if err := f.SetCellStyle(SheetName, "A1", "G1", bold); err != nil {
		return fmt.Errorf("styling header: %w", err)
	}

	row := 2
	var werr error
	tree.Walk(func(c, z, n int, node content.Node) bool {
		ch, _ := tree.Chapter(c)
		zone, _ := tree.Zone(c, z)
		var st string
		if status != nil {
			st = string(status(progression.Position{Chapter: c, Zone: z, Node: n}))
		}
		values := []any{ch.Title, zone.Title, n + 1, node.Info().Title, string(node.Kind()), node.Info().XP, st}

		cell, err := excelize.CoordinatesToCellName(1, row)
		if err != nil {
			werr = err
			return false
		}
		if err := f.SetSheetRow(SheetName, cell, &values); err != nil {
			werr = fmt.Errorf("writing row %d: %w", row, err)
			return false
		}
		row++
		return true
	})
	if werr != nil {
		return werr
	}

	if err := f.SetColWidth(SheetName, "A", "B", 36); err != nil {
		return fmt.Errorf("sizing columns: %w", err)
	}
	if err := f.SetColWidth(SheetName, "D", "D", 28); err != nil {
		return fmt.Errorf("sizing columns: %w", err)
	}
	if err := writeScripts(f, tree, scripts); err != nil {
		return err
	}
	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("writing workbook: %w", err)
	}
	return nil
}

func writeScripts(f *excelize.File, tree *content.Tree, scripts map[string]string) error {
	var rows [][]any
	tree.Walk(func(_, _, _ int, node content.Node) bool {
		if node.Kind() != content.KindChallenge {
			return true
		}
		if src, ok := scripts[node.Info().Title]; ok {
			rows = append(rows, []any{node.Info().Title, string(node.Prompt().Runtime), src})
		}
		return true
	})
	if len(rows) == 0 {
		return nil
	}

	if _, err := f.NewSheet(ScriptsSheet); err != nil {
		return fmt.Errorf("creating scripts sheet: %w", err)
	}
	header := make([]any, len(ScriptsHeader))
	for i, h := range ScriptsHeader {
		header[i] = h
	}
	if err := f.SetSheetRow(ScriptsSheet, "A1", &header); err != nil {
		return fmt.Errorf("writing scripts header: %w", err)
	}
	for i, values := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(ScriptsSheet, cell, &values); err != nil {
			return fmt.Errorf("writing script row %d: %w", i+2, err)
		}
	}
	if err := f.SetColWidth(ScriptsSheet, "A", "A", 28); err != nil {
		return fmt.Errorf("sizing columns: %w", err)
	}
	return nil
}
