package main

import (
	"encoding/json"
	"fmt"
	"io"
)

// alfredItem is one row of an Alfred script filter result.
type alfredItem struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Subtitle string `json:"subtitle"`
	Arg      string `json:"arg"`
}

type alfredOutput struct {
	Items []alfredItem `json:"items"`
}

func writeAlfred(w io.Writer, devices []Device) error {
	out := alfredOutput{Items: make([]alfredItem, 0, len(devices))}
	for _, d := range devices {
		title := d.Name
		if d.Connected {
			title += " (Connected)"
		}
		out.Items = append(out.Items, alfredItem{
			Type:     "default",
			Title:    title,
			Subtitle: "MAC:" + d.Address,
			Arg:      d.Address,
		})
	}
	return json.NewEncoder(w).Encode(out)
}

func writeText(w io.Writer, devices []Device) error {
	for _, d := range devices {
		state := "disconnected"
		if d.Connected {
			state = "connected"
		}
		if _, err := fmt.Fprintf(w, "%s\t%s\t%s\n", d.Address, state, d.Name); err != nil {
			return err
		}
	}
	return nil
}
