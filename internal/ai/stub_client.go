package ai

import "context"

// LoremCaption — подпись-заглушка бэкенда lorem.
const LoremCaption = "Lorem ipsum dolor sit amet, consectetur adipiscing elit. Sed non risus. " +
	"Suspendisse lectus tortor, dignissim sit amet, adipiscing nec, ultricies sed, dolor."

// StubClient заглушка, которая не делает реальных запросов
type StubClient struct{}

func NewStubClient() *StubClient { return &StubClient{} }

func (c *StubClient) Describe(context.Context, DescribeRequest) (string, error) {
	return LoremCaption, nil
}
