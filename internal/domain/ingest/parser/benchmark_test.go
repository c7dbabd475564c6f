package parser

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v6"
)

// generateStatement creates CSV statement data with the given row count.
// Seeded so benchmark runs are comparable.
func generateStatement(rows int) []byte {
	faker := gofakeit.New(42)

	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)
	writer.Write([]string{"Date", "Description", "Amount", "Type"})

	for i := 0; i < rows; i++ {
		date := time.Now().AddDate(0, 0, -i%365).Format("2006-01-02")
		desc := fmt.Sprintf("%s #%d", faker.Company(), faker.Number(1000, 9999))
		amount := fmt.Sprintf("%.2f", -faker.Price(1, 2500))
		writer.Write([]string{date, desc, amount, ""})
	}

	writer.Flush()
	return buf.Bytes()
}

func BenchmarkCSVParser(b *testing.B) {
	sizes := []int{100, 1000, 10000}

	for _, size := range sizes {
		data := generateStatement(size)
		b.Run(fmt.Sprintf("%d_rows", size), func(b *testing.B) {
			b.SetBytes(int64(len(data)))
			p := NewCSVParser()
			for i := 0; i < b.N; i++ {
				result, err := p.Parse(bytes.NewReader(data))
				if err != nil {
					b.Fatal(err)
				}
				if result.ParsedRows != size {
					b.Fatalf("parsed %d of %d rows", result.ParsedRows, size)
				}
			}
		})
	}
}
