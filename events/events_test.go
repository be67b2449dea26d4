/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package events

import (
	"context"
	"testing"

	"github.com/cockroachdb/errors"
	json "github.com/goccy/go-json"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomoncle/crud/utils"
)

type recordingWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *recordingWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *recordingWriter) Close() error {
	w.closed = true
	return nil
}

func TestNewEvent(t *testing.T) {
	ctx := utils.WithRequestID(context.Background(), "rid-1")
	e := New(ctx, "User", Created, "42", map[string]string{"email": "a@b.c"})
	assert.NotEmpty(t, e.ID)
	assert.Equal(t, "rid-1", e.RequestID)
	assert.False(t, e.OccurredAt.IsZero())
}

func TestKafkaPublisher(t *testing.T) {
	w := &recordingWriter{}
	p := NewKafkaPublisher(w)
	ctx := context.Background()

	require.NoError(t, p.Publish(ctx))
	assert.Empty(t, w.msgs)

	require.NoError(t, p.Publish(ctx,
		New(ctx, "User", Created, "1", nil),
		New(ctx, "User", Deleted, "2", nil),
	))
	require.Len(t, w.msgs, 2)
	assert.Equal(t, "1", string(w.msgs[0].Key))
	assert.Equal(t, "action", w.msgs[1].Headers[1].Key)
	assert.Equal(t, "deleted", string(w.msgs[1].Headers[1].Value))

	var decoded Event
	require.NoError(t, json.Unmarshal(w.msgs[1].Value, &decoded))
	assert.Equal(t, Deleted, decoded.Action)
	assert.Equal(t, "User", decoded.Entity)

	w.err = errors.New("broker down")
	assert.ErrorContains(t, p.Publish(ctx, New(ctx, "User", Updated, "1", nil)), "broker down")

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestNopPublisher(t *testing.T) {
	var p Publisher = NopPublisher{}
	assert.NoError(t, p.Publish(context.Background(), Event{}))
}
