package corpus

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"revsense/internal/schema"
	"revsense/pkg/contracts/domain"
)

// Build tuning defaults.
const (
	// DefaultSizeThreshold selects the chunked path for inputs whose
	// estimated size exceeds it.
	DefaultSizeThreshold = 100 << 20 // 100 MB
	// DefaultChunkSize is the number of rows consumed per chunk on the
	// chunked path.
	DefaultChunkSize = 100_000
	// MinReviewLength is the minimum trimmed text length for a review to
	// qualify; texts of exactly this length or shorter are dropped.
	MinReviewLength = 5
)

// SchemaError reports that a required column could not be resolved in the
// source (or in a chunk, on the chunked path).
type SchemaError struct {
	Column  string
	Headers []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("schema discovery failed: no %q column in headers %v", e.Column, e.Headers)
}

// Builder produces a ReviewCorpus from a tabular source. The zero value is
// not usable; construct with NewBuilder.
type Builder struct {
	// SizeThreshold switches between the in-memory and chunked paths.
	SizeThreshold int64
	// ChunkSize is the row budget per chunk on the chunked path.
	ChunkSize int
	// MinReviews is the minimum review count a product must reach to stay
	// in the corpus.
	MinReviews int
	// Progress, when set, receives the fraction of the source consumed in
	// [0,1] after each chunk. Never called on the in-memory path except
	// once at completion.
	Progress func(fraction float64)

	logger *slog.Logger
}

// NewBuilder returns a Builder with the default thresholds.
func NewBuilder(logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{
		SizeThreshold: DefaultSizeThreshold,
		ChunkSize:     DefaultChunkSize,
		MinReviews:    1,
		logger:        logger.With(slog.String("component", "corpus.builder")),
	}
}

// Build reads the source and groups qualifying review texts by product.
// Rows with a missing product, a too-short review text or an unparsable
// rating are skipped individually; an unresolvable review-text or product
// column is fatal and surfaces as *SchemaError. An empty resulting corpus
// is not an error at this layer.
//
// Inputs above SizeThreshold are consumed in ChunkSize-row chunks with
// column resolution re-checked per chunk; smaller inputs are loaded
// whole. Both paths share the same row filter and return identical corpora
// for the same input. ctx cancellation aborts between rows.
func (b *Builder) Build(ctx context.Context, src Source) (domain.ReviewCorpus, error) {
	if src.Size() > b.SizeThreshold {
		return b.buildChunked(ctx, src)
	}
	return b.buildInMemory(ctx, src)
}

// buildInMemory loads the full source, resolves columns once and groups
// rows by product.
func (b *Builder) buildInMemory(ctx context.Context, src Source) (domain.ReviewCorpus, error) {
	cols, err := resolveColumns(src.Headers())
	if err != nil {
		return nil, err
	}

	var rows [][]string
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		row, err := src.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}

	corpus := make(domain.ReviewCorpus)
	skipped := 0
	for _, row := range rows {
		if !accumulateRow(corpus, cols, row) {
			skipped++
		}
	}

	b.finish(corpus, len(rows), skipped, "in-memory")
	if b.Progress != nil {
		b.Progress(1)
	}
	return b.filterMinReviews(corpus), nil
}

// buildChunked consumes the source in bounded row chunks, accumulating all
// chunks into one shared corpus and reporting progress after each chunk.
// The schema is assumed stable across chunks; a resolution failure in any
// chunk is fatal for the whole build.
func (b *Builder) buildChunked(ctx context.Context, src Source) (domain.ReviewCorpus, error) {
	corpus := make(domain.ReviewCorpus)
	total, skipped := 0, 0

	for {
		cols, err := resolveColumns(src.Headers())
		if err != nil {
			return nil, err
		}

		consumed := 0
		for consumed < b.ChunkSize {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			row, err := src.Next()
			if err == io.EOF {
				b.reportFraction(src)
				b.finish(corpus, total, skipped, "chunked")
				return b.filterMinReviews(corpus), nil
			}
			if err != nil {
				return nil, err
			}
			consumed++
			total++
			if !accumulateRow(corpus, cols, row) {
				skipped++
			}
		}

		b.reportFraction(src)
		b.logger.Debug("chunk consumed",
			slog.Int("rows", consumed),
			slog.Int("total_rows", total),
			slog.Int("products", len(corpus)))
	}
}

// accumulateRow applies the shared row filter and adds a qualifying review
// to the corpus. It reports whether the row was kept.
func accumulateRow(corpus domain.ReviewCorpus, cols schema.Columns, row []string) bool {
	product := cell(row, cols.Product)
	text := cell(row, cols.Text)

	if product == "" || len(text) <= MinReviewLength {
		return false
	}
	if cols.Rating >= 0 {
		if raw := cell(row, cols.Rating); raw != "" {
			if _, err := strconv.ParseFloat(strings.ReplaceAll(raw, ",", ""), 64); err != nil {
				return false
			}
		}
	}

	corpus.Add(product, text)
	return true
}

// cell returns the trimmed value at idx, or "" for out-of-range columns.
func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

// filterMinReviews drops products below the minimum review count.
func (b *Builder) filterMinReviews(corpus domain.ReviewCorpus) domain.ReviewCorpus {
	min := b.MinReviews
	if min <= 1 {
		return corpus
	}
	filtered := make(domain.ReviewCorpus, len(corpus))
	for product, reviews := range corpus {
		if len(reviews) >= min {
			filtered[product] = reviews
		}
	}
	return filtered
}

func (b *Builder) reportFraction(src Source) {
	if b.Progress == nil {
		return
	}
	if f := src.Fraction(); f >= 0 {
		if f > 1 {
			f = 1
		}
		b.Progress(f)
	}
}

func (b *Builder) finish(corpus domain.ReviewCorpus, rows, skipped int, path string) {
	b.logger.Info("corpus built",
		slog.String("path", path),
		slog.Int("rows", rows),
		slog.Int("rows_skipped", skipped),
		slog.Int("products", len(corpus)),
		slog.Int("reviews", corpus.TotalReviews()))
}

// resolveColumns adapts schema resolution errors to the build error type.
func resolveColumns(headers []string) (schema.Columns, error) {
	cols, err := schema.ResolveColumns(headers)
	if err != nil {
		var schemaErr *schema.Error
		if errors.As(err, &schemaErr) {
			return cols, &SchemaError{Column: schemaErr.Column, Headers: schemaErr.Headers}
		}
		return cols, err
	}
	return cols, nil
}
