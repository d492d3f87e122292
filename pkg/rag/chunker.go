package rag

import (
	"fmt"
	"log/slog"
	"strings"
)

// Chunker splits document text recursively on a separator hierarchy,
// trying the coarsest boundary first and only degrading to finer ones for
// pieces that are still too large. Adjacent chunks share a configurable
// overlap so context is not lost at cut points.
type Chunker struct {
	config *ChunkerConfig
	logger *slog.Logger
}

// ChunkerConfig holds configuration for the chunker.
type ChunkerConfig struct {
	// ChunkSize is the target maximum chunk length in runes.
	ChunkSize int `json:"chunk_size"`
	// ChunkOverlap is how many runes consecutive chunks may share.
	ChunkOverlap int `json:"chunk_overlap"`
	// Separators are tried in order; the empty string means "split
	// anywhere" and must come last.
	Separators []string `json:"separators"`
}

// DefaultChunkerConfig returns the chunking defaults.
func DefaultChunkerConfig() *ChunkerConfig {
	return &ChunkerConfig{
		ChunkSize:    2000,
		ChunkOverlap: 200,
		Separators:   []string{"\n\n", "\n", " ", ""},
	}
}

// NewChunker creates a chunker with the given configuration.
func NewChunker(config *ChunkerConfig) *Chunker {
	if config == nil {
		config = DefaultChunkerConfig()
	}
	if len(config.Separators) == 0 {
		config.Separators = []string{"\n\n", "\n", " ", ""}
	}
	return &Chunker{
		config: config,
		logger: slog.Default().With("component", "chunker"),
	}
}

// ChunkDocuments splits every document and attaches positional metadata to
// each resulting chunk.
func (c *Chunker) ChunkDocuments(docs []ExtractedDocument) []Chunk {
	var chunks []Chunk
	for docIdx, doc := range docs {
		pieces := c.SplitText(doc.Text)
		for i, piece := range pieces {
			chunks = append(chunks, Chunk{
				Text: piece,
				Metadata: ChunkMetadata{
					ChunkID:               fmt.Sprintf("%d_%d", docIdx, i),
					ChunkIndex:            i,
					TotalChunksInDoc:      len(pieces),
					ChunkSize:             runeLen(piece),
					OriginalDocumentIndex: docIdx,
					Source:                doc.Metadata.Source,
					FileName:              doc.Metadata.FileName,
					Directory:             doc.Metadata.Directory,
				},
			})
		}
	}
	c.logger.Info("Chunked documents",
		"documents", len(docs),
		"chunks", len(chunks))
	return chunks
}

// SplitText splits a single text into chunks of at most ChunkSize runes,
// except where an indivisible piece alone exceeds the limit.
func (c *Chunker) SplitText(text string) []string {
	if text == "" {
		return nil
	}
	return c.split(text, c.config.Separators)
}

func (c *Chunker) split(text string, separators []string) []string {
	separator := separators[len(separators)-1]
	var remaining []string
	for i, sep := range separators {
		if sep == "" {
			separator = sep
			break
		}
		if strings.Contains(text, sep) {
			separator = sep
			remaining = separators[i+1:]
			break
		}
	}

	var splits []string
	if separator == "" {
		for _, r := range text {
			splits = append(splits, string(r))
		}
	} else {
		for _, s := range strings.Split(text, separator) {
			if s != "" {
				splits = append(splits, s)
			}
		}
	}

	// Small pieces accumulate until the size limit, oversize pieces
	// recurse on the finer separators.
	var final []string
	var good []string
	for _, s := range splits {
		if runeLen(s) < c.config.ChunkSize {
			good = append(good, s)
			continue
		}
		if len(good) > 0 {
			final = append(final, c.mergeSplits(good, separator)...)
			good = nil
		}
		if len(remaining) == 0 {
			final = append(final, s)
		} else {
			final = append(final, c.split(s, remaining)...)
		}
	}
	if len(good) > 0 {
		final = append(final, c.mergeSplits(good, separator)...)
	}
	return final
}

// mergeSplits packs consecutive pieces into chunks no longer than
// ChunkSize, carrying the last ChunkOverlap runes of each chunk into the
// next one.
func (c *Chunker) mergeSplits(splits []string, separator string) []string {
	sepLen := runeLen(separator)

	var docs []string
	var current []string
	total := 0
	for _, s := range splits {
		l := runeLen(s)
		join := 0
		if len(current) > 0 {
			join = sepLen
		}
		if total+l+join > c.config.ChunkSize && len(current) > 0 {
			if doc := joinPieces(current, separator); doc != "" {
				docs = append(docs, doc)
			}
			// Walk the window forward until the retained tail fits
			// inside the overlap budget and leaves room for the next
			// piece.
			for total > c.config.ChunkOverlap ||
				(total+l+sepLen > c.config.ChunkSize && total > 0) {
				drop := runeLen(current[0])
				if len(current) > 1 {
					drop += sepLen
				}
				total -= drop
				current = current[1:]
			}
		}
		if len(current) > 0 {
			total += sepLen
		}
		current = append(current, s)
		total += l
	}
	if doc := joinPieces(current, separator); doc != "" {
		docs = append(docs, doc)
	}
	return docs
}

func joinPieces(pieces []string, separator string) string {
	return strings.TrimSpace(strings.Join(pieces, separator))
}

func runeLen(s string) int {
	return len([]rune(s))
}
