package aws

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/tidwall/gjson"

	"moff.io/moff-wallet/internal/cache"
	"moff.io/moff-wallet/internal/deeplink"
	"moff.io/moff-wallet/pkg/concurrent"
	"moff.io/moff-wallet/pkg/errors"
	"moff.io/moff-wallet/pkg/log"
)

const (
	deduplicationTTL = time.Hour * 24 * 3
	receiveBackoff   = 5 * time.Second
)

type QueueMessageHandler func(ctx context.Context, msg *types.Message) (deleteMsg bool, err error)

// SQSWorker consumes a queue, handing each message to the handler at most
// once across workers. Up to workers messages are handled at a time.
type SQSWorker struct {
	client   *Clients
	queueURL string
	handler  QueueMessageHandler
	deduper  cache.Deduper
	limiter  concurrent.Limiter
	wg       sync.WaitGroup
	// wait after a failed receive
	backoff time.Duration
}

func (s *Clients) NewSQSWorker(queueURL string, workers int, deduper cache.Deduper, handler QueueMessageHandler) *SQSWorker {
	return &SQSWorker{
		client:   s,
		queueURL: queueURL,
		handler:  handler,
		deduper:  deduper,
		limiter:  concurrent.NewLimiter(workers),
		backoff:  receiveBackoff,
	}
}

// Run blocks until ctx is done and in-flight messages are handled.
func (w *SQSWorker) Run(ctx context.Context) {
	idx := strings.LastIndex(w.queueURL, "/")
	queueName := w.queueURL[idx+1:]
	log.Infof("Blocking consume messages from queue %v...", queueName)
	defer log.Infof("Stopped to consume messages from queue %v...", queueName)
	defer w.wg.Wait()
	for {
		messages, err := w.client.GetMessagesFromSQS(ctx, w.queueURL, 10)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Error(err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(w.backoff):
			}
			continue
		}
		for i := range messages {
			w.consume(ctx, queueName, &messages[i])
		}
	}
}

func (w *SQSWorker) consume(ctx context.Context, queueName string, msg *types.Message) {
	// a claimed key means another worker has this message, drop our copy
	cacheKey := fmt.Sprintf("%v_deduplication:%v", queueName, aws.ToString(msg.MessageId))
	claimed, err := w.deduper.Claim(ctx, cacheKey, deduplicationTTL)
	if err != nil {
		log.Error(err)
		return
	}
	if !claimed {
		if err := w.client.DeleteSingleMessageFromSQS(ctx, w.queueURL, aws.ToString(msg.ReceiptHandle)); err != nil {
			log.Error(err)
		}
		return
	}

	w.limiter.Add()
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer w.limiter.Done()
		deleteMsg, err := w.handler(ctx, msg)
		if err != nil {
			log.Error(errors.WithStackAndReport(err))
		}
		if err == nil && deleteMsg {
			if err := w.client.DeleteSingleMessageFromSQS(ctx, w.queueURL, aws.ToString(msg.ReceiptHandle)); err != nil {
				log.Error(err)
			}
			return
		}
		if err := w.deduper.Release(ctx, cacheKey); err != nil {
			log.Error(err)
		}
	}()
}

func (s *Clients) GetMessagesFromSQS(ctx context.Context, queueUrl string, max int32) ([]types.Message, error) {
	output, err := s.sqsClient.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(queueUrl),
		MaxNumberOfMessages: max,
		WaitTimeSeconds:     20,
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errors.WrapfAndReport(err, "query sqs message from %s", queueUrl)
	}
	return output.Messages, nil
}

func (s *Clients) DeleteSingleMessageFromSQS(ctx context.Context, queueUrl, receiptHandle string) error {
	_, err := s.sqsClient.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(queueUrl),
		ReceiptHandle: aws.String(receiptHandle),
	})
	return errors.WrapfAndReport(err, "delete sqs message from %s", queueUrl)
}

// DeepLinkHandler opens push notification deep links, bodies of the form
// {"url": "...", "source": "push"}. Malformed bodies are deleted.
func DeepLinkHandler(d *deeplink.Dispatcher) QueueMessageHandler {
	return func(ctx context.Context, msg *types.Message) (bool, error) {
		body := gjson.Parse(aws.ToString(msg.Body))
		link := body.Get("url").String()
		if link == "" {
			log.Warnf("deep link queue message %v has no url", aws.ToString(msg.MessageId))
			return true, nil
		}
		source := body.Get("source").String()
		if source == "" {
			source = "push"
		}
		_, err := d.Handle(ctx, deeplink.Event{URL: link, ColdStart: body.Get("cold_start").Bool(), Source: source})
		if errors.Is(err, deeplink.ErrUnknownAccount) {
			return true, nil
		}
		if err != nil {
			return false, err
		}
		return true, nil
	}
}
