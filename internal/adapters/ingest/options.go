package ingest

// Option applies a configuration option to the readers.
type Option func(*options)

type options struct {
	comma      rune
	sheet      string
	matchSheet string
}

func newOptions(opts []Option) options {
	o := options{sheet: DefaultSheet, matchSheet: DefaultMatchSheet}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithComma fixes the CSV field delimiter. By default it is detected from the header.
func WithComma(r rune) Option {
	return func(o *options) {
		o.comma = r
	}
}

// WithSheet selects the rally sheet of a workbook.
func WithSheet(name string) Option {
	return func(o *options) {
		if name != "" {
			o.sheet = name
		}
	}
}

// WithMatchSheet selects the match metadata sheet of a workbook.
func WithMatchSheet(name string) Option {
	return func(o *options) {
		if name != "" {
			o.matchSheet = name
		}
	}
}
