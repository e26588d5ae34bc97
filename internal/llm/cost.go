package llm

// Cost returns the USD cost of a call with the given token counts. Unknown
// models cost 0.
func (c *Catalog) Cost(model string, inputTokens, outputTokens int) float64 {
	m, ok := c.Get(model)
	if !ok {
		return 0
	}
	return float64(inputTokens)/1e6*m.InputPer1M + float64(outputTokens)/1e6*m.OutputPer1M
}

// AudioCost prices a transcription of the given length in seconds.
func (c *Catalog) AudioCost(model string, seconds float64) float64 {
	m, ok := c.Get(model)
	if !ok {
		return 0
	}
	return seconds / 60 * m.AudioPerMinute
}
