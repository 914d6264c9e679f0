// Command hexctl inspects and edits a running hexmapd from the terminal.
//
//	hexctl status
//	hexctl map [-plain]
//	hexctl stroke <file.json|->
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/gookit/color"

	"github.com/talgya/hexterrain/internal/client"
	"github.com/talgya/hexterrain/internal/editor"
)

var (
	colorLabel  = color.Style{color.FgGray}
	colorValue  = color.Style{color.FgCyan, color.OpBold}
	colorDenied = color.Style{color.FgRed, color.OpBold}
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))
	slog.SetDefault(logger)

	plain := flag.Bool("plain", false, "print the map without colour")
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, "usage: hexctl [-plain] status|map|stroke <file.json|->")
		fmt.Fprintln(os.Stderr, "env: HEXMAP_API_URL (default http://localhost:8080), HEXMAP_ADMIN_KEY")
	}
	flag.Parse()
	if *plain {
		color.Disable()
	}

	c := client.FromEnv()
	var err error
	switch flag.Arg(0) {
	case "status":
		err = runStatus(c)
	case "map":
		err = runMap(c, os.Stdout)
	case "stroke":
		err = runStroke(c, flag.Arg(1))
	default:
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		colorDenied.Println(err)
		os.Exit(1)
	}
}

func runStatus(c *client.Client) error {
	st, err := c.Status()
	if err != nil {
		return err
	}
	line := func(label string, v any) {
		fmt.Printf("%s %s\n", colorLabel.Sprintf("%-14s", label), colorValue.Sprint(v))
	}
	line("tick", st.Tick)
	line("running", st.Running)
	line("started", st.Started)
	line("cells", st.Cells)
	line("chunks", fmt.Sprintf("%d (%d dirty)", st.Chunks, st.DirtyChunks))
	line("strokes", fmt.Sprintf("%d (%d rejected)", st.Strokes, st.Rejected))
	line("cells changed", st.CellsChanged)
	line("rebuilds", st.Rebuilds)
	line("mesh builds", st.MeshBuilds)
	line("stream", st.StreamClients)
	return nil
}

func runMap(c *client.Client, w io.Writer) error {
	m, err := c.FetchMap()
	if err != nil {
		return err
	}
	if len(m.Cells) != m.Width*m.Height {
		return fmt.Errorf("map has %d cells, want %d", len(m.Cells), m.Width*m.Height)
	}

	// Rows print top-down so north is up; odd rows sit half a cell right.
	for row := m.Height - 1; row >= 0; row-- {
		var b strings.Builder
		if row&1 == 1 {
			b.WriteByte(' ')
		}
		for col := 0; col < m.Width; col++ {
			cell := m.Cells[row*m.Width+col]
			b.WriteString(color.HEX(cell.Color, true).Sprint(glyph(cell)))
		}
		fmt.Fprintln(w, b.String())
	}
	fmt.Fprintln(w, colorLabel.Sprint("~~ river  == road  ## walled  .. water  digits: elevation"))
	return nil
}

// glyph picks the two-character mark drawn over a cell's colour.
func glyph(c client.Cell) string {
	switch {
	case c.RiverIn != "" || c.RiverOut != "":
		return "~~"
	case len(c.Roads) > 0:
		return "=="
	case c.Walled:
		return "##"
	case c.Underwater():
		return ".."
	default:
		return fmt.Sprintf("%2d", c.Elevation)
	}
}

func runStroke(c *client.Client, path string) error {
	var r io.Reader
	switch path {
	case "":
		return fmt.Errorf("stroke needs a file argument (or - for stdin)")
	case "-":
		r = os.Stdin
	default:
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("open stroke: %w", err)
		}
		defer f.Close()
		r = f
	}

	var st editor.Stroke
	if err := json.NewDecoder(r).Decode(&st); err != nil {
		return fmt.Errorf("decode stroke: %w", err)
	}
	if err := st.Settings.Validate(editor.DefaultLimits()); err != nil {
		slog.Warn("stroke exceeds default limits, server may reject it", "error", err)
	}

	resp, err := c.PostStroke(st)
	if err != nil {
		return err
	}
	fmt.Printf("%s %s\n", colorLabel.Sprint("stroke"), colorValue.Sprint(resp.ID))
	fmt.Printf("%s %d points, %d drags, %d cells changed\n",
		colorLabel.Sprint("result"), resp.Result.Points, resp.Result.Drags, resp.Result.Changed)
	if resp.Result.RiversRejected > 0 || resp.Result.RoadsRejected > 0 {
		colorDenied.Printf("rejected: %d rivers, %d roads\n", resp.Result.RiversRejected, resp.Result.RoadsRejected)
	}
	return nil
}
