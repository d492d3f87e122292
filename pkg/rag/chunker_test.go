package rag

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitTextShortInput(t *testing.T) {
	c := NewChunker(nil)
	assert.Nil(t, c.SplitText(""))
	assert.Equal(t, []string{"short text"}, c.SplitText("short text"))
}

func TestSplitTextRespectsChunkSize(t *testing.T) {
	c := NewChunker(&ChunkerConfig{
		ChunkSize:    50,
		ChunkOverlap: 10,
		Separators:   []string{"\n\n", "\n", " ", ""},
	})

	text := strings.Repeat("palavra curta aqui ", 40)
	chunks := c.SplitText(text)
	require.NotEmpty(t, chunks)
	for i, ch := range chunks {
		assert.LessOrEqual(t, len([]rune(ch)), 50, "chunk %d too long", i)
		assert.NotEmpty(t, ch)
	}
}

func TestSplitTextParagraphBoundaries(t *testing.T) {
	c := NewChunker(&ChunkerConfig{
		ChunkSize:    30,
		ChunkOverlap: 0,
		Separators:   []string{"\n\n", "\n", " ", ""},
	})

	text := "primeiro paragrafo aqui\n\nsegundo paragrafo aqui\n\nterceiro paragrafo final"
	chunks := c.SplitText(text)
	assert.Equal(t, []string{
		"primeiro paragrafo aqui",
		"segundo paragrafo aqui",
		"terceiro paragrafo final",
	}, chunks)
}

func TestSplitTextZeroOverlapPreservesContent(t *testing.T) {
	c := NewChunker(&ChunkerConfig{
		ChunkSize:    25,
		ChunkOverlap: 0,
		Separators:   []string{"\n\n", "\n", " ", ""},
	})

	words := []string{"icms", "apuracao", "saldo", "devedor", "incentivo", "fiscal", "recolhimento", "mensal"}
	text := strings.Join(words, " ")
	chunks := c.SplitText(text)
	require.NotEmpty(t, chunks)

	// With zero overlap the concatenated chunks carry every word exactly
	// once, in order.
	var got []string
	for _, ch := range chunks {
		got = append(got, strings.Fields(ch)...)
	}
	assert.Equal(t, words, got)
}

func TestSplitTextOverlapCarriesTail(t *testing.T) {
	c := NewChunker(&ChunkerConfig{
		ChunkSize:    20,
		ChunkOverlap: 8,
		Separators:   []string{" ", ""},
	})

	chunks := c.SplitText("um dois tres quatro cinco seis")
	require.Greater(t, len(chunks), 1)
	for i := 1; i < len(chunks); i++ {
		prevWords := strings.Fields(chunks[i-1])
		curWords := strings.Fields(chunks[i])
		require.NotEmpty(t, prevWords)
		require.NotEmpty(t, curWords)
		// Each chunk starts with the tail of its predecessor.
		assert.Equal(t, prevWords[len(prevWords)-1], curWords[0],
			"chunk %d does not overlap its predecessor", i)
	}
}

func TestSplitTextHardCutWithoutSeparators(t *testing.T) {
	c := NewChunker(&ChunkerConfig{
		ChunkSize:    10,
		ChunkOverlap: 0,
		Separators:   []string{"\n\n", "\n", " ", ""},
	})

	// One unbroken run longer than the chunk size must be cut anyway.
	text := strings.Repeat("a", 25)
	chunks := c.SplitText(text)
	require.Len(t, chunks, 3)
	assert.Equal(t, strings.Repeat("a", 10), chunks[0])
	assert.Equal(t, strings.Repeat("a", 10), chunks[1])
	assert.Equal(t, strings.Repeat("a", 5), chunks[2])
}

func TestSplitTextCountsRunesNotBytes(t *testing.T) {
	c := NewChunker(&ChunkerConfig{
		ChunkSize:    10,
		ChunkOverlap: 0,
		Separators:   []string{" ", ""},
	})

	// Accented words are multi-byte in UTF-8 but must be measured in
	// runes.
	chunks := c.SplitText("ação órgão débito crédito")
	for _, ch := range chunks {
		assert.LessOrEqual(t, len([]rune(ch)), 10)
	}
}

func TestChunkDocumentsMetadata(t *testing.T) {
	c := NewChunker(&ChunkerConfig{
		ChunkSize:    30,
		ChunkOverlap: 0,
		Separators:   []string{"\n\n", "\n", " ", ""},
	})

	docs := []ExtractedDocument{
		{
			Text: "primeiro paragrafo aqui\n\nsegundo paragrafo aqui",
			Metadata: DocumentMetadata{
				Source:    "documents/manual.pdf",
				FileName:  "manual.pdf",
				Directory: "documents",
			},
		},
		{
			Text: "documento curto",
			Metadata: DocumentMetadata{
				Source:    "documents/sub/nota.pdf",
				FileName:  "nota.pdf",
				Directory: "documents/sub",
			},
		},
	}

	chunks := c.ChunkDocuments(docs)
	require.Len(t, chunks, 3)

	assert.Equal(t, "0_0", chunks[0].Metadata.ChunkID)
	assert.Equal(t, 0, chunks[0].Metadata.ChunkIndex)
	assert.Equal(t, 2, chunks[0].Metadata.TotalChunksInDoc)
	assert.Equal(t, 0, chunks[0].Metadata.OriginalDocumentIndex)
	assert.Equal(t, "manual.pdf", chunks[0].Metadata.FileName)
	assert.Equal(t, len([]rune(chunks[0].Text)), chunks[0].Metadata.ChunkSize)

	assert.Equal(t, "0_1", chunks[1].Metadata.ChunkID)
	assert.Equal(t, 1, chunks[1].Metadata.ChunkIndex)

	assert.Equal(t, "1_0", chunks[2].Metadata.ChunkID)
	assert.Equal(t, 1, chunks[2].Metadata.TotalChunksInDoc)
	assert.Equal(t, 1, chunks[2].Metadata.OriginalDocumentIndex)
	assert.Equal(t, "nota.pdf", chunks[2].Metadata.FileName)
}

func TestChunkDocumentsEmpty(t *testing.T) {
	c := NewChunker(nil)
	assert.Empty(t, c.ChunkDocuments(nil))
	assert.Empty(t, c.ChunkDocuments([]ExtractedDocument{{Text: ""}}))
}
