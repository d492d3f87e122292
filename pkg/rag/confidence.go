package rag

// AggregateConfidence reduces retrieval scores to their average and the
// qualitative band it falls in. No retrieved chunks means zero average and
// low confidence.
func AggregateConfidence(chunks []ScoredChunk) (float64, Confidence) {
	if len(chunks) == 0 {
		return 0, ConfidenceLow
	}

	var sum float64
	for _, c := range chunks {
		sum += c.Score
	}
	avg := sum / float64(len(chunks))

	switch {
	case avg > 0.8:
		return avg, ConfidenceHigh
	case avg > 0.6:
		return avg, ConfidenceMedium
	default:
		return avg, ConfidenceLow
	}
}
