package dataio

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/marcodn/adp"
)

// WritePointInfo writes one line per point: kstar, cluster id, log density
// with 11 decimal places, and a 0/1 center flag. Fields are tab separated
// with a trailing tab.
func WritePointInfo(w io.Writer, res *adp.Result) error {
	bw := bufio.NewWriter(w)
	for i, label := range res.Labels {
		center := 0
		if res.IsCenter[i] {
			center = 1
		}
		fmt.Fprintf(bw, "%d\t%d\t%.11f\t%d\t\n", res.KStar[i], label, res.LogRho[i], center)
	}
	return bw.Flush()
}

// WriteBorders writes one line per surviving cluster holding the border
// representative point toward each cluster it borders, tab separated and
// ascending by the bordering cluster's id. Clusters without borders get
// an empty line.
func WriteBorders(w io.Writer, res *adp.Result) error {
	type edge struct {
		other int
		point int
	}
	adj := make([][]edge, res.NumClusters)
	for _, b := range res.Borders {
		adj[b.ClusterA] = append(adj[b.ClusterA], edge{other: b.ClusterB, point: b.Point})
		adj[b.ClusterB] = append(adj[b.ClusterB], edge{other: b.ClusterA, point: b.Point})
	}

	bw := bufio.NewWriter(w)
	for _, edges := range adj {
		sort.Slice(edges, func(i, j int) bool { return edges[i].other < edges[j].other })
		for j, e := range edges {
			if j > 0 {
				fmt.Fprint(bw, "\t")
			}
			fmt.Fprintf(bw, "%d", e.point)
		}
		fmt.Fprintln(bw)
	}
	return bw.Flush()
}

// WritePointInfoFile writes the point report to a file.
func WritePointInfoFile(path string, res *adp.Result) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WritePointInfo(f, res); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// WriteBordersFile writes the border report to a file.
func WriteBordersFile(path string, res *adp.Result) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteBorders(f, res); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
