package net

import (
	"fmt"
	"io"
	"strings"
)

// Summary writes a table of the network architecture to w.
func (n *Network) Summary(w io.Writer) {
	rule := strings.Repeat("_", 65)
	fmt.Fprintln(w, "Model: Network")
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "%-25s %-20s %-10s\n", "Layer (type)", "Output Shape", "Param #")
	fmt.Fprintln(w, strings.Repeat("=", 65))

	totalParams := 0
	if n.conv != nil {
		cfg := n.conv.Config()
		p := n.conv.Params()
		params := len(p.Filters) + len(p.Bias)
		totalParams += params
		shape := fmt.Sprintf("(%d, %d, %d)", cfg.OutputChannels, n.conv.OutputHeight(), n.conv.OutputWidth())
		fmt.Fprintf(w, "%-25s %-20s %-10d\n", "Conv_0", shape, params)
	}

	last := len(n.dense) - 1
	for i, d := range n.dense {
		name := fmt.Sprintf("Dense_%d", i)
		if i == last {
			name += " (linear)"
		}
		// Running statistics are not trained and are not counted.
		params := d.InSize()*d.OutSize() + 2*d.OutSize()
		totalParams += params
		fmt.Fprintf(w, "%-25s %-20s %-10d\n", name, fmt.Sprintf("(%d)", d.OutSize()), params)
	}
	fmt.Fprintln(w, strings.Repeat("=", 65))
	fmt.Fprintf(w, "Total params: %d\n", totalParams)
}
