package databus

import (
	"strings"

	"gopkg.in/Shopify/sarama.v1"

	"moff.io/moff-wallet/pkg/errors"
	"moff.io/moff-wallet/pkg/log"
)

type Event interface {
	Serialize() []byte
	Topic() string
}

// Publisher is what producers of analytics events depend on.
type Publisher interface {
	Publish(e Event) error
}

type DataBus struct {
	producer sarama.SyncProducer
}

var producer *DataBus

func NewDataBus(p sarama.SyncProducer) *DataBus {
	return &DataBus{producer: p}
}

// InitDataBus connects a sync producer to the comma separated brokers.
func InitDataBus(host string) error {
	hosts := strings.Split(host, ",")
	conf := sarama.NewConfig()
	conf.Producer.Return.Successes = true
	conf.Producer.RequiredAcks = sarama.WaitForLocal
	p, err := sarama.NewSyncProducer(hosts, conf)
	if err != nil {
		return errors.Wrap(err, "create kafka producer")
	}
	producer = NewDataBus(p)
	log.Info("Kafka producer initialized...")
	return nil
}

func GetDataBus() *DataBus {
	return producer
}

func (db *DataBus) PublishRaw(topic string, raw []byte) error {
	if len(raw) == 0 {
		return nil
	}
	_, _, err := db.producer.SendMessage(&sarama.ProducerMessage{
		Topic: topic,
		Value: sarama.ByteEncoder(raw)})
	if err != nil {
		return errors.WrapAndReport(err, "produce message")
	}
	return nil
}

func (db *DataBus) Publish(e Event) error {
	return db.PublishRaw(e.Topic(), e.Serialize())
}

func (db *DataBus) Close() error {
	if db == nil || db.producer == nil {
		return nil
	}
	return db.producer.Close()
}

// LocalBus writes events to the log instead of kafka. Used when no brokers
// are configured and by the CLI.
type LocalBus struct{}

func (LocalBus) Publish(e Event) error {
	log.Infof("topic: %s message: %s", e.Topic(), string(e.Serialize()))
	return nil
}
