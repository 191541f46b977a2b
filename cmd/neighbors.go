package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/drkrodriguez/ISSS626-GAA/internal/geodata"
	"github.com/drkrodriguez/ISSS626-GAA/internal/weights"
)

var (
	nbGeometry  string
	nbIDField   string
	nbNameField string
	nbCRS       string
	nbRegion    string
)

var neighborsCmd = &cobra.Command{
	Use:   "neighbors",
	Short: "Inspect the contiguity structure of a boundary file",
	Long:  "Builds the neighborhood under the chosen rule and reports link counts, isolated regions, and connected components. With --region it lists that region's neighbors instead.",
	RunE: func(cmd *cobra.Command, args []string) error {
		p := paramsFromConfig(cfg.Pipeline)
		applyParamFlags(cmd.Flags(), &p)

		rule, err := weights.ParseRule(p.Rule, p.Band, p.KNN)
		if err != nil {
			return err
		}

		geo, err := loadGeometry(nbGeometry, nbIDField, nbNameField, nbCRS)
		if err != nil {
			return err
		}

		nb, err := weights.BuildNeighborhood(geo, rule)
		if err != nil {
			return err
		}

		if nbRegion != "" {
			neighbors, err := nb.Neighbors(nbRegion)
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stdout, "%s: %d neighbor(s)\n", nbRegion, len(neighbors))
			for _, id := range neighbors {
				fmt.Fprintf(os.Stdout, "  %s\n", id)
			}
			return nil
		}

		formatNeighborhood(os.Stdout, nb)
		return nil
	},
}

func init() {
	neighborsCmd.Flags().StringVar(&nbGeometry, "geometry", "", "region boundary file (.shp, .geojson)")
	neighborsCmd.Flags().StringVar(&nbIDField, "id-field", "", "geometry property holding the region id")
	neighborsCmd.Flags().StringVar(&nbNameField, "name-field", "", "geometry property holding the region name")
	neighborsCmd.Flags().StringVar(&nbCRS, "crs", "", "coordinate reference system tag")
	neighborsCmd.Flags().StringVar(&nbRegion, "region", "", "list the neighbors of this region id")
	addParamFlags(neighborsCmd.Flags())
	_ = neighborsCmd.MarkFlagRequired("geometry")
	rootCmd.AddCommand(neighborsCmd)
}

// loadGeometry reads a boundary file on its own, chosen by extension like
// the full pipeline loader.
func loadGeometry(path, idField, nameField, crs string) (*geodata.Table, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".shp":
		return geodata.ReadShapefile(path, geodata.ShapefileOptions{
			IDField:   idField,
			NameField: nameField,
			CRS:       crs,
		})
	case ".geojson", ".json":
		return geodata.ReadGeoJSONFile(path, geodata.GeoJSONOptions{
			IDProperty:   idField,
			NameProperty: nameField,
			CRS:          crs,
		})
	}
	return nil, eris.Errorf("unsupported geometry format %q (use .shp, .geojson, or .json)", path)
}

// formatNeighborhood summarizes the adjacency: link counts, the degree
// range, isolated regions, and components.
func formatNeighborhood(out io.Writer, nb *weights.Neighborhood) {
	n := nb.Len()
	links := nb.NumLinks()

	minDeg, maxDeg, isolated := n, 0, []string{}
	for i, id := range nb.IDs() {
		deg := len(nb.AdjacentIdx(i))
		if deg < minDeg {
			minDeg = deg
		}
		if deg > maxDeg {
			maxDeg = deg
		}
		if deg == 0 {
			isolated = append(isolated, id)
		}
	}
	avg := 0.0
	if n > 0 {
		avg = 2 * float64(links) / float64(n)
	}

	fmt.Fprintf(out, "Rule: %s\n", nb.Rule())
	fmt.Fprintf(out, "Regions: %d, links: %d\n", n, links)
	fmt.Fprintf(out, "Neighbors per region: min %d, avg %.2f, max %d\n", minDeg, avg, maxDeg)

	comps := nb.Components()
	fmt.Fprintf(out, "Components: %d\n", len(comps))
	if len(comps) > 1 {
		for i, c := range comps {
			sample := c
			if len(sample) > 5 {
				sample = sample[:5]
			}
			fmt.Fprintf(out, "  component %d: %d region(s), e.g. %s\n", i+1, len(c), strings.Join(sample, ", "))
		}
	}
	if len(isolated) > 0 {
		fmt.Fprintf(out, "Isolated: %s\n", strings.Join(isolated, ", "))
	}
}
