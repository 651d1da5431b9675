// Command citysearch queries the bundled city gazetteer from the terminal.
//
// Usage:
//
//	go run ./cmd/citysearch 北京
//	go run ./cmd/citysearch -limit 3 "san"
//	go run ./cmd/citysearch -nearest 39.9,116.4
package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/luckystar-app/luckystar"
)

func main() {
	limit := flag.Int("limit", gazetteer.DefaultLimit, "maximum number of results")
	nearest := flag.String("nearest", "", "lat,lng pair to reverse-look-up instead of searching")
	flag.Parse()

	g := gazetteer.New()

	if *nearest != "" {
		latStr, lngStr, ok := strings.Cut(*nearest, ",")
		if !ok {
			fmt.Fprintln(os.Stderr, "expected -nearest lat,lng")
			os.Exit(1)
		}
		lat, errLat := strconv.ParseFloat(strings.TrimSpace(latStr), 64)
		lng, errLng := strconv.ParseFloat(strings.TrimSpace(lngStr), 64)
		if errLat != nil || errLng != nil {
			fmt.Fprintln(os.Stderr, "expected -nearest lat,lng")
			os.Exit(1)
		}

		city, found, err := g.Nearest(lat, lng)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if !found {
			fmt.Println("no city nearby")
			return
		}
		fmt.Printf("%s, %s (%.4f, %.4f)\n", city.Name, city.Country, city.Latitude, city.Longitude)
		return
	}

	query := strings.Join(flag.Args(), " ")
	if strings.TrimSpace(query) == "" {
		fmt.Fprintln(os.Stderr, "usage: citysearch [-limit n] <query>")
		os.Exit(1)
	}

	results, err := g.Search(query, *limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if len(results) == 0 {
		fmt.Println("no matches")
		return
	}
	for i, city := range results {
		region := city.Subcountry
		if region != "" {
			region = ", " + region
		}
		fmt.Printf("%2d. %s%s, %s (%.4f, %.4f)\n", i+1, city.Name, region, city.Country, city.Latitude, city.Longitude)
	}
}
