// Copyright (c) 2017 Uber Technologies, Inc.
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

package kafka

// Deserializer turns a raw record's key/value bytes into a Value. It is a
// pure function: no I/O, no side effects. A nil return (ok=false) means the
// record could not be decoded; the caller commits the offset and drops it.
type Deserializer interface {
	Deserialize(topic string, partition int32, offset int64, key, value []byte) (Value, bool)
}

// DeserializerFunc adapts a plain function to a Deserializer.
type DeserializerFunc func(topic string, partition int32, offset int64, key, value []byte) (Value, bool)

// Deserialize implements Deserializer.
func (f DeserializerFunc) Deserialize(topic string, partition int32, offset int64, key, value []byte) (Value, bool) {
	return f(topic, partition, offset, key, value)
}
