package codec

import (
	"testing"
)

// benchmarkValues returns a set of values for targeted benchmarking
func benchmarkValues() map[string]any {
	return map[string]any{
		"SmallString": "medium length value for testing serialization",
		"LargeString": largeText(16 * 1024),
		"SmallBytes":  []byte("v"),
		"LargeBytes":  make([]byte, 16*1024),
		"SmallMap":    map[string]any{"id": 1, "name": "x"},
		"LargeMap":    map[string]any{"body": largeText(8 * 1024), "tags": []any{"a", "b", "c"}},
	}
}

// BenchmarkEncode benchmarks encoding for all pipelines with various values
func BenchmarkEncode(b *testing.B) {
	for name, factory := range testPipelines {
		for valName, v := range benchmarkValues() {
			b.Run(name+"_"+valName, func(b *testing.B) {
				p := factory()
				b.ReportAllocs()
				b.ResetTimer()

				for i := 0; i < b.N; i++ {
					if _, err := p.Encode(v); err != nil {
						b.Fatalf("Failed to encode: %v", err)
					}
				}
			})
		}
	}
}

// BenchmarkDecode benchmarks decoding for all pipelines with various values
func BenchmarkDecode(b *testing.B) {
	for name, factory := range testPipelines {
		for valName, v := range benchmarkValues() {
			b.Run(name+"_"+valName, func(b *testing.B) {
				p := factory()
				enc, err := p.Encode(v)
				if err != nil {
					b.Fatalf("Failed to encode %s: %v", valName, err)
				}
				b.ReportAllocs()
				b.ResetTimer()

				for i := 0; i < b.N; i++ {
					if _, err := p.DecodeChain(enc.Chain, enc.Data); err != nil {
						b.Fatalf("Failed to decode: %v", err)
					}
				}
			})
		}
	}
}
