package storage

import "testing"

func TestListOptionsNormalize(t *testing.T) {
	tests := []struct {
		name       string
		opts       ListOptions
		wantPage   int
		wantLimit  int
		wantOffset int
	}{
		{name: "zero value gets defaults", opts: ListOptions{}, wantPage: 1, wantLimit: 50, wantOffset: 0},
		{name: "negative values clamped", opts: ListOptions{Page: -2, Limit: -5}, wantPage: 1, wantLimit: 50, wantOffset: 0},
		{name: "limit capped at max", opts: ListOptions{Page: 1, Limit: 1000}, wantPage: 1, wantLimit: 200, wantOffset: 0},
		{name: "offset follows page", opts: ListOptions{Page: 3, Limit: 10}, wantPage: 3, wantLimit: 10, wantOffset: 20},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.opts.Normalize()
			if tt.opts.Page != tt.wantPage {
				t.Errorf("Page = %d, want %d", tt.opts.Page, tt.wantPage)
			}
			if tt.opts.Limit != tt.wantLimit {
				t.Errorf("Limit = %d, want %d", tt.opts.Limit, tt.wantLimit)
			}
			if tt.opts.Offset() != tt.wantOffset {
				t.Errorf("Offset() = %d, want %d", tt.opts.Offset(), tt.wantOffset)
			}
		})
	}
}
