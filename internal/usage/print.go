package usage

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
)

const gib = float64(1 << 30)

func ibytes(v float64) string {
	if v <= 0 {
		return "0 B"
	}
	return humanize.IBytes(uint64(v))
}

// WriteRanks prints one line per rank.
func WriteRanks(w io.Writer, snaps []Snapshot, where string) error {
	width := len(strconv.Itoa(max(len(snaps)-1, 0)))
	for i, s := range snaps {
		var b strings.Builder
		fmt.Fprintf(&b, "[%*d]: %s", width, i, where)
		fmt.Fprintf(&b, " | Vm[Size,RSS]/[Peak,HWM]: (%s, %s / %s, %s)",
			ibytes(s[VmSize]), ibytes(s[VmRSS]), ibytes(s[VmPeak]), ibytes(s[VmHWM]))
		fmt.Fprintf(&b, " | Used/Total RAM: (%s / %s)", ibytes(s[RAMUsed]), ibytes(s[RAMTotal]))
		if s[VRAMTotal] > 0 {
			fmt.Fprintf(&b, " | Used/Total VRAM: (%s / %s)", ibytes(s[VRAMUsed]), ibytes(s[VRAMTotal]))
		}
		for _, pf := range poolFields {
			if s[pf.size+1] > 0 {
				fmt.Fprintf(&b, " | %sSize/%sPeak: (%s / %s)", pf.label, pf.label, ibytes(s[pf.size]), ibytes(s[pf.size+1]))
			}
		}
		b.WriteByte('\n')
		if _, err := io.WriteString(w, b.String()); err != nil {
			return err
		}
	}
	return nil
}

type column struct {
	title string
	field Field
}

// columns picks the table columns: process figures always, device memory
// when any rank has an accelerator, and pool pairs when any rank used them.
func columns(st Stats) []column {
	cols := []column{
		{"VmSize (GiB)", VmSize},
		{"VmPeak (GiB)", VmPeak},
		{"VmRSS (GiB)", VmRSS},
		{"VmHWM (GiB)", VmHWM},
	}
	if st.Max[VRAMTotal] > 0 {
		cols = append(cols,
			column{"VRAMused (GiB)", VRAMUsed},
			column{"VRAMtotal (GiB)", VRAMTotal})
	}
	for _, pf := range poolFields {
		if st.Max[pf.size+1] > 0 {
			cols = append(cols,
				column{pf.label + "Size (GiB)", pf.size},
				column{pf.label + "Peak (GiB)", pf.size + 1})
		}
	}
	return cols
}

// WriteTable prints the Min/Max/Avg/Std table in GiB.
func WriteTable(w io.Writer, st Stats, where string) error {
	cols := columns(st)

	var b strings.Builder
	fmt.Fprintf(&b, "\nMemory usage across %d ranks - %s\n\n", st.Ranks, where)

	b.WriteString("      ")
	for _, c := range cols {
		fmt.Fprintf(&b, " | %*s", len(c.title), c.title)
	}
	b.WriteString("\n   ---")
	for _, c := range cols {
		b.WriteString("-+-")
		b.WriteString(strings.Repeat("-", len(c.title)))
	}
	b.WriteByte('\n')

	rows := []struct {
		label string
		data  *Snapshot
	}{
		{"Min", &st.Min},
		{"Max", &st.Max},
		{"Avg", &st.Mean},
		{"Std", &st.Std},
	}
	for _, r := range rows {
		fmt.Fprintf(&b, "   %-3s", r.label)
		for _, c := range cols {
			fmt.Fprintf(&b, " | %*.3f", len(c.title), r.data[c.field]/gib)
		}
		b.WriteByte('\n')
	}

	_, err := io.WriteString(w, b.String())
	return err
}
