// Copyright 2016-2019 DutchSec (https://dutchsec.com/)
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package kafka

import (
	"encoding/json"
	"errors"
	"sync"

	sarama "github.com/Shopify/sarama"
	"github.com/shadowlure/shadowlure/event"
	"github.com/shadowlure/shadowlure/pushers"

	logging "github.com/op/go-logging"
)

var (
	_ = pushers.Register("kafka", New)
)

var log = logging.MustGetLogger("shadowlure:channels:kafka")

// Config defines the kafka brokers and topic events are produced to.
type Config struct {
	Brokers   []string `toml:"brokers"`
	Topic     string   `toml:"topic"`
	QueueSize int      `toml:"queue-size"`
}

// Backend defines a struct which provides a channel for delivery
// of events to a kafka topic.
type Backend struct {
	Config

	producer sarama.AsyncProducer

	q    *pushers.Queue
	wg   sync.WaitGroup
	once sync.Once
}

// WithProducer uses p instead of connecting to the configured brokers.
func WithProducer(p sarama.AsyncProducer) pushers.ChannelOption {
	return func(ch pushers.Channel) error {
		ch.(*Backend).producer = p
		return nil
	}
}

// New returns a new kafka channel.
func New(options ...pushers.ChannelOption) (pushers.Channel, error) {
	c := Backend{}

	for _, optionFn := range options {
		if err := optionFn(&c); err != nil {
			return nil, err
		}
	}

	if c.Topic == "" {
		return nil, errors.New("kafka channel: topic not set")
	}

	if c.producer == nil {
		if len(c.Brokers) == 0 {
			return nil, errors.New("kafka channel: brokers not set")
		}

		config := sarama.NewConfig()
		config.Producer.Return.Errors = true

		producer, err := sarama.NewAsyncProducer(c.Brokers, config)
		if err != nil {
			return nil, err
		}

		c.producer = producer
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		for msg := range c.producer.Errors() {
			log.Errorf("Error producing event to kafka: %s", msg.Err)
		}
	}()

	c.q = pushers.NewQueue("kafka", c.QueueSize, c.produce)
	return &c, nil
}

func (hc *Backend) produce(e event.Event) {
	data, err := json.Marshal(e)
	if err != nil {
		log.Errorf("Error marshaling event: %s", err.Error())
		return
	}

	hc.producer.Input() <- &sarama.ProducerMessage{
		Topic: hc.Topic,
		Key:   sarama.StringEncoder(e.SourceIP),
		Value: sarama.ByteEncoder(data),
	}
}

// Send queues the event for the kafka producer.
func (hc *Backend) Send(e event.Event) {
	hc.q.Send(e)
}

// Close produces the queued events and shuts down the producer.
func (hc *Backend) Close() error {
	var err error

	hc.once.Do(func() {
		hc.q.Close()
		err = hc.producer.Close()
		hc.wg.Wait()
	})

	return err
}
