package embedding

import "time"

// packBatches greedily packs texts into batches that respect both a
// token ceiling and an item-count ceiling, dropping any text whose
// estimated token count alone exceeds the limit. Grounded on
// original_source/chunkhound/embeddings.py's create_token_aware_batches:
// a new batch starts whenever the next text would overflow either
// ceiling; texts that don't fit at all are skipped, not erred.
//
// dropped carries the index (into texts) of every text that was skipped
// because its own estimate exceeds maxTokens — callers use this to
// explain why the result list can be shorter than the input list.
//
// Each batch carries the original indices of its texts alongside the
// texts themselves, so a caller that reorders or drops work can still
// map every produced vector back to the text it came from.
func packBatches(texts []string, tok Tokenizer, maxTokens, maxBatchItems int) (batches []textBatch, dropped []int) {
	if len(texts) == 0 {
		return nil, nil
	}
	if tok == nil {
		tok = DefaultTokenizer()
	}
	if maxBatchItems <= 0 {
		maxBatchItems = len(texts)
	}

	var current textBatch
	currentTokens := 0

	for i, text := range texts {
		tokens := tok.CountTokens(text)

		if maxTokens > 0 && tokens > maxTokens {
			dropped = append(dropped, i)
			continue
		}

		overflowsTokens := maxTokens > 0 && currentTokens+tokens > maxTokens
		overflowsItems := len(current.texts) >= maxBatchItems
		if (overflowsTokens || overflowsItems) && len(current.texts) > 0 {
			batches = append(batches, current)
			current = textBatch{}
			currentTokens = 0
		}

		current.indices = append(current.indices, i)
		current.texts = append(current.texts, text)
		currentTokens += tokens
	}

	if len(current.texts) > 0 {
		batches = append(batches, current)
	}

	return batches, dropped
}

// textBatch pairs a slice of texts with their original positions in the
// caller's input, so results can be reassembled in the right order even
// after packing, splitting, or dropping.
type textBatch struct {
	indices []int
	texts   []string
}

// splitForTokenLimit recovers from a provider rejecting a batch with a
// token-limit error despite pre-flight packing (estimator drift): split
// into ceil(total_tokens/limit) sub-batches of roughly equal size. A
// single-text batch is split by character count instead and only the
// first sub-chunk is kept, since sub-chunking a single text's tokens
// isn't meaningful at the batch level — the caller treats that sub-chunk
// as a representative embedding for the whole text.
func splitForTokenLimit(batch textBatch, tok Tokenizer, maxTokens int) []textBatch {
	if len(batch.texts) == 0 {
		return nil
	}
	if tok == nil {
		tok = DefaultTokenizer()
	}

	if len(batch.texts) == 1 {
		text := batch.texts[0]
		tokens := tok.CountTokens(text)
		if tokens <= maxTokens || maxTokens <= 0 {
			return []textBatch{batch}
		}
		ratio := float64(maxTokens) / float64(tokens)
		cut := int(float64(len(text)) * ratio)
		if cut < 1 {
			cut = 1
		}
		if cut > len(text) {
			cut = len(text)
		}
		return []textBatch{{indices: batch.indices, texts: []string{text[:cut]}}}
	}

	totalTokens := 0
	for _, text := range batch.texts {
		totalTokens += tok.CountTokens(text)
	}
	if maxTokens <= 0 || totalTokens <= maxTokens {
		return []textBatch{batch}
	}

	numSubBatches := (totalTokens + maxTokens - 1) / maxTokens
	if numSubBatches < 2 {
		numSubBatches = 2
	}
	perBatch := (len(batch.texts) + numSubBatches - 1) / numSubBatches

	var subBatches []textBatch
	for start := 0; start < len(batch.texts); start += perBatch {
		end := start + perBatch
		if end > len(batch.texts) {
			end = len(batch.texts)
		}
		subBatches = append(subBatches, textBatch{
			indices: batch.indices[start:end],
			texts:   batch.texts[start:end],
		})
	}
	return subBatches
}

// adaptiveSizer tracks a rolling window of per-batch wall-clock times and
// grows or shrinks a batch size accordingly. Grounded on
// original_source/chunkhound/embeddings.py's BGEInICLProvider._adapt_batch_size:
// window default 10, decisions require at least 3 samples, shrink when
// the most recent 3 average more than 1.5x the full window average,
// grow when they average under 0.7x.
type adaptiveSizer struct {
	windowSize int
	min, max   int
	current    int
	window     []time.Duration
}

// newAdaptiveSizer creates a sizer seeded at initial, bounded to [min,max].
// A max below min is raised to min, and initial is clamped into the range.
func newAdaptiveSizer(initial, min, max int) *adaptiveSizer {
	if max < min {
		max = min
	}
	if initial < min {
		initial = min
	}
	if initial > max {
		initial = max
	}
	return &adaptiveSizer{windowSize: 10, min: min, max: max, current: initial}
}

func (a *adaptiveSizer) size() int { return a.current }

// observe records a batch's elapsed time and adjusts the current size.
func (a *adaptiveSizer) observe(elapsed time.Duration) {
	a.window = append(a.window, elapsed)
	if len(a.window) > a.windowSize {
		a.window = a.window[len(a.window)-a.windowSize:]
	}
	if len(a.window) < 3 {
		return
	}

	var windowTotal time.Duration
	for _, d := range a.window {
		windowTotal += d
	}
	windowMean := windowTotal / time.Duration(len(a.window))

	var recentTotal time.Duration
	recent := a.window[len(a.window)-3:]
	for _, d := range recent {
		recentTotal += d
	}
	recentMean := recentTotal / 3

	switch {
	case float64(recentMean) > float64(windowMean)*1.5 && a.current > a.min:
		shrunk := int(float64(a.current) * 0.8)
		if shrunk < a.min {
			shrunk = a.min
		}
		a.current = shrunk
	case float64(recentMean) < float64(windowMean)*0.7 && a.current < a.max:
		grown := int(float64(a.current) * 1.2)
		if grown > a.max {
			grown = a.max
		}
		if grown <= a.current {
			grown = a.current + 1
			if grown > a.max {
				grown = a.max
			}
		}
		a.current = grown
	}
}
