package compression

// DefaultThresholdKB is the NeedsCompression limit used when none is given.
const DefaultThresholdKB = 1000

// Recommendation is a default parameter set chosen from a file's byte size.
type Recommendation struct {
	Recommended bool    `json:"recommended"`
	MaxSizeKB   int     `json:"max_size_kb"`
	MaxWidth    int     `json:"max_width"`
	MaxHeight   int     `json:"max_height"`
	Quality     float64 `json:"quality"`
	Reason      string  `json:"reason"`
}

// Options converts the recommendation into compression options.
func (r Recommendation) Options(format Format) Options {
	return Options{
		MaxSizeKB: r.MaxSizeKB,
		MaxWidth:  r.MaxWidth,
		MaxHeight: r.MaxHeight,
		Quality:   r.Quality,
		Format:    format,
	}
}

type tier struct {
	aboveMB float64
	rec     Recommendation
}

// tiers is ordered high to low; the first strict "above" match wins.
var tiers = []tier{
	{4, Recommendation{
		Recommended: true, MaxSizeKB: 500, MaxWidth: 1000, MaxHeight: 1000, Quality: 0.7,
		Reason: "Image is very large (>4MB). Strong compression recommended.",
	}},
	{2, Recommendation{
		Recommended: true, MaxSizeKB: 800, MaxWidth: 1200, MaxHeight: 1200, Quality: 0.8,
		Reason: "Image is large (>2MB). Compression recommended.",
	}},
	{1, Recommendation{
		Recommended: true, MaxSizeKB: 1000, MaxWidth: 1400, MaxHeight: 1400, Quality: 0.85,
		Reason: "Image is moderately large (>1MB). Light compression recommended.",
	}},
}

var acceptable = Recommendation{
	Recommended: false, MaxSizeKB: 1000, MaxWidth: 1600, MaxHeight: 1600, Quality: 0.9,
	Reason: "Image size is acceptable. No compression needed.",
}

// Recommend picks compression defaults for a file of the given size.
func Recommend(sizeBytes int64) Recommendation {
	sizeMB := float64(sizeBytes) / (1024 * 1024)
	for _, t := range tiers {
		if sizeMB > t.aboveMB {
			return t.rec
		}
	}
	return acceptable
}

// RecommendFile is Recommend for a File.
func RecommendFile(f File) Recommendation {
	return Recommend(f.Size())
}

// NeedsCompression reports whether sizeBytes exceeds maxSizeKB.
// A non-positive maxSizeKB means DefaultThresholdKB.
func NeedsCompression(sizeBytes int64, maxSizeKB int) bool {
	if maxSizeKB <= 0 {
		maxSizeKB = DefaultThresholdKB
	}
	return sizeBytes > budgetBytes(maxSizeKB)
}
