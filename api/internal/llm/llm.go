package llm

import "context"

// Generator turns question text into markdown solutions.
type Generator interface {
	Generate(ctx context.Context, questionText string) (string, error)
}

// Prober makes one trivial call to confirm the endpoint is reachable and the
// key is authorised. A nil error means the model answered with text.
type Prober interface {
	Probe(ctx context.Context) error
}
