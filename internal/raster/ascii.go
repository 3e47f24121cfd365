package raster

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// data rows of wide grids can exceed the default scanner token size
const maxLineBytes = 4 * 1024 * 1024

// ParseASCIIGrid reads an Esri ASCII grid. Both corner and centre
// lower-left registration headers are accepted; centre registration is
// normalized to the corner convention.
func ParseASCIIGrid(reader io.Reader) (*Grid, error) {
	grid := &Grid{NoData: NoData}
	remainingHeaders := []string{"NCOLS", "NROWS", "XLLCENTER", "XLLCORNER", "YLLCENTER", "YLLCORNER", "CELLSIZE", "NODATA_VALUE"}
	stillIsHeader := true
	rowIndex := uint(0)
	var xCenter, yCenter *float64

	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}

		keyword := strings.ToUpper(fields[0])

		if stillIsHeader && headerIndex(remainingHeaders, keyword) >= 0 {
			remainingHeaders = removeHeader(remainingHeaders, keyword)

			// registration is either corner or centre, never both
			if keyword == "XLLCENTER" || keyword == "YLLCENTER" {
				remainingHeaders = removeHeader(remainingHeaders, "XLLCORNER")
				remainingHeaders = removeHeader(remainingHeaders, "YLLCORNER")
			}
			if keyword == "XLLCORNER" || keyword == "YLLCORNER" {
				remainingHeaders = removeHeader(remainingHeaders, "XLLCENTER")
				remainingHeaders = removeHeader(remainingHeaders, "YLLCENTER")
			}

			if err := parseHeaderLine(keyword, fields, grid, &xCenter, &yCenter); err != nil {
				return nil, err
			}
			continue
		}

		if stillIsHeader {
			// NODATA_VALUE is optional, drop it before checking completeness
			remainingHeaders = removeHeader(remainingHeaders, "NODATA_VALUE")
			if len(remainingHeaders) > 0 {
				return nil, fmt.Errorf("grid is missing mandatory headers: %s", strings.Join(remainingHeaders, ", "))
			}
			stillIsHeader = false
			grid.Data = make([][]float64, grid.Nrows)
		}

		if rowIndex >= grid.Nrows {
			break
		}
		row, err := parseDataLine(fields, grid.Ncols)
		if err != nil {
			return nil, fmt.Errorf("data row %d: %w", rowIndex, err)
		}
		grid.Data[rowIndex] = row
		rowIndex++
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if stillIsHeader {
		return nil, fmt.Errorf("grid has no data rows")
	}
	if rowIndex < grid.Nrows {
		return nil, fmt.Errorf("grid has %d data rows, header promised %d", rowIndex, grid.Nrows)
	}

	if xCenter != nil {
		grid.Xll = *xCenter - grid.CellSize/2
	}
	if yCenter != nil {
		grid.Yll = *yCenter - grid.CellSize/2
	}

	// normalize the provider's no-data marker to ours
	if grid.NoData != NoData {
		for r := range grid.Data {
			for c, v := range grid.Data[r] {
				if v == grid.NoData {
					grid.Data[r][c] = NoData
				}
			}
		}
		grid.NoData = NoData
	}

	return grid, nil
}

func parseHeaderLine(keyword string, fields []string, grid *Grid, xCenter, yCenter **float64) error {
	if len(fields) != 2 {
		return fmt.Errorf("header line %s must have exactly two fields", keyword)
	}

	switch keyword {
	case "NCOLS":
		i, err := strconv.ParseUint(fields[1], 10, 32)
		if err != nil {
			return err
		}
		grid.Ncols = uint(i)
	case "NROWS":
		i, err := strconv.ParseUint(fields[1], 10, 32)
		if err != nil {
			return err
		}
		grid.Nrows = uint(i)
	case "XLLCORNER":
		f, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return err
		}
		grid.Xll = f
	case "YLLCORNER":
		f, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return err
		}
		grid.Yll = f
	case "XLLCENTER":
		f, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return err
		}
		*xCenter = &f
	case "YLLCENTER":
		f, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return err
		}
		*yCenter = &f
	case "CELLSIZE":
		f, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return err
		}
		if f <= 0.0 {
			return fmt.Errorf("CELLSIZE must be greater than 0")
		}
		grid.CellSize = f
	case "NODATA_VALUE":
		f, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return err
		}
		grid.NoData = f
	}
	return nil
}

func parseDataLine(fields []string, cols uint) ([]float64, error) {
	if uint(len(fields)) < cols {
		return nil, fmt.Errorf("row has %d values, want %d", len(fields), cols)
	}
	row := make([]float64, cols)
	for i := uint(0); i < cols; i++ {
		f, err := strconv.ParseFloat(fields[i], 64)
		if err != nil {
			return nil, err
		}
		row[i] = f
	}
	return row, nil
}

// WriteASCIIGrid writes the grid in Esri ASCII format with corner
// registration, the layout game engines and GIS tools import directly.
func WriteASCIIGrid(w io.Writer, g *Grid) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "ncols %d\n", g.Ncols)
	fmt.Fprintf(bw, "nrows %d\n", g.Nrows)
	fmt.Fprintf(bw, "xllcorner %s\n", formatFloat(g.Xll))
	fmt.Fprintf(bw, "yllcorner %s\n", formatFloat(g.Yll))
	fmt.Fprintf(bw, "cellsize %s\n", formatFloat(g.CellSize))
	fmt.Fprintf(bw, "NODATA_value %s\n", formatFloat(g.NoData))
	for r := uint(0); r < g.Nrows; r++ {
		for c := uint(0); c < g.Ncols; c++ {
			if c > 0 {
				if err := bw.WriteByte(' '); err != nil {
					return err
				}
			}
			if _, err := bw.WriteString(formatFloat(g.Data[r][c])); err != nil {
				return err
			}
		}
		if err := bw.WriteByte('\n'); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func headerIndex(headers []string, keyword string) int {
	for i, h := range headers {
		if h == keyword {
			return i
		}
	}
	return -1
}

func removeHeader(headers []string, keyword string) []string {
	var remaining []string
	for _, h := range headers {
		if h != keyword {
			remaining = append(remaining, h)
		}
	}
	return remaining
}
