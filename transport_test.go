// go-ld2410
// Copyright (c) 2025 The go-ld2410 Contributors.
// SPDX-License-Identifier: LGPL-3.0-or-later
//
// This file is part of go-ld2410.
//
// go-ld2410 is free software; you can redistribute it and/or
// modify it under the terms of the GNU Lesser General Public
// License as published by the Free Software Foundation; either
// version 3 of the License, or (at your option) any later version.
//
// go-ld2410 is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with go-ld2410; if not, write to the Free Software Foundation,
// Inc., 51 Franklin Street, Fifth Floor, Boston, MA  02110-1301, USA.

package ld2410

import (
	"bytes"
	"errors"
	"io"
	"os"
	"syscall"
	"testing"

	"github.com/ncmreynolds/ld2410/internal/frame"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedStream returns queued read results in order, then zero bytes
type scriptedStream struct {
	reads  []readResult
	out    bytes.Buffer
	closed bool
}

type readResult struct {
	err  error
	data []byte
}

func (s *scriptedStream) Read(p []byte) (int, error) {
	if len(s.reads) == 0 {
		return 0, nil
	}
	next := s.reads[0]
	s.reads = s.reads[1:]
	return copy(p, next.data), next.err
}

func (s *scriptedStream) Write(p []byte) (int, error) {
	return s.out.Write(p)
}

func (s *scriptedStream) Close() error {
	s.closed = true
	return nil
}

func TestStreamTransport_AvailableAndReadByte(t *testing.T) {
	t.Parallel()

	stream := &scriptedStream{reads: []readResult{
		{data: []byte{0xF4, 0xF3}},
		{err: os.ErrDeadlineExceeded},
		{data: []byte{0xF2}},
	}}
	tr := NewStreamTransport(stream, TransportUART, "/dev/ttyUSB0")

	n, err := tr.Available()
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = tr.Available()
	require.NoError(t, err)
	assert.Equal(t, 2, n, "buffered bytes are reported without another read")

	for _, want := range []byte{0xF4, 0xF3} {
		b, err := tr.ReadByte()
		require.NoError(t, err)
		assert.Equal(t, want, b)
	}

	n, err = tr.Available()
	require.NoError(t, err, "deadline errors mean no data")
	assert.Zero(t, n)

	n, err = tr.Available()
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = tr.ReadByte()
	require.NoError(t, err)
	_, err = tr.ReadByte()
	require.ErrorIs(t, err, ErrTransportRead)
}

func TestStreamTransport_ReadErrors(t *testing.T) {
	t.Parallel()

	stream := &scriptedStream{reads: []readResult{
		{err: errors.New("parity")},
		{data: []byte{0x01}, err: syscall.ENXIO},
	}}
	tr := NewStreamTransport(stream, "", "sim")
	assert.Equal(t, TransportStream, tr.Type())
	assert.Equal(t, "sim", tr.Name())

	_, err := tr.Available()
	require.ErrorIs(t, err, ErrTransportRead)
	assert.True(t, IsRetryable(err))
	assert.False(t, IsFatal(err))

	n, err := tr.Available()
	require.Error(t, err)
	assert.True(t, IsFatal(err))
	assert.Equal(t, 1, n, "bytes read alongside an error are kept")
}

func TestStreamTransport_WriteAndClose(t *testing.T) {
	t.Parallel()

	stream := &scriptedStream{}
	tr := NewStreamTransport(stream, TransportTCP, "socket://radar:4001")

	cmd := frame.BuildCommand(cmdReadFirmware, nil)
	n, err := tr.Write(cmd)
	require.NoError(t, err)
	assert.Equal(t, len(cmd), n)
	assert.Equal(t, cmd, stream.out.Bytes())
	assert.True(t, tr.IsConnected())

	require.NoError(t, tr.Close())
	require.NoError(t, tr.Close(), "close is idempotent")
	assert.True(t, stream.closed)
	assert.False(t, tr.IsConnected())

	_, err = tr.Write(cmd)
	require.ErrorIs(t, err, ErrTransportClosed)
	_, err = tr.Available()
	require.ErrorIs(t, err, ErrTransportClosed)
	_, err = tr.ReadByte()
	require.ErrorIs(t, err, ErrTransportClosed)
}

func TestStreamTransport_WriteErrors(t *testing.T) {
	t.Parallel()

	r, w := io.Pipe()
	require.NoError(t, r.Close())

	tr := NewStreamTransport(struct {
		io.Reader
		io.Writer
	}{Reader: bytes.NewReader(nil), Writer: w}, TransportStream, "pipe")

	_, err := tr.Write([]byte{0x00})
	require.Error(t, err)
	assert.True(t, IsFatal(err))
}

func TestMockTransport_Scripted(t *testing.T) {
	t.Parallel()

	mock := NewMockTransport()
	first := frame.BuildAck(cmdRestart, 1, nil)
	second := frame.BuildAck(cmdRestart, 0, nil)
	mock.SetResponse(cmdRestart, first, second)

	restart := frame.BuildCommand(cmdRestart, nil)
	for _, want := range [][]byte{first, second, second} {
		_, err := mock.Write(restart)
		require.NoError(t, err)
		assert.Equal(t, len(want), mock.Pending())

		got := make([]byte, 0, len(want))
		for mock.Pending() > 0 {
			b, err := mock.ReadByte()
			require.NoError(t, err)
			got = append(got, b)
		}
		assert.Equal(t, want, got)
	}
	assert.Equal(t, 3, mock.GetCallCount(cmdRestart))

	mock.SetError(cmdRestart, ErrTransportWrite)
	_, err := mock.Write(restart)
	require.ErrorIs(t, err, ErrTransportWrite)
	mock.ClearError(cmdRestart)
	_, err = mock.Write(restart)
	require.NoError(t, err)
}

func TestMockTransport_Responder(t *testing.T) {
	t.Parallel()

	mock := NewMockTransport()
	var gotPayload []byte
	mock.SetResponder(func(cmd byte, payload []byte) [][]byte {
		gotPayload = payload
		return [][]byte{frame.BuildAck(cmd, 0, nil)}
	})

	_, err := mock.Write(frame.BuildCommand(cmdBluetooth, frame.Word(0x0001)))
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01, 0x00}, gotPayload)
	assert.Equal(t, frame.Overhead+4, mock.Pending())

	_, err = mock.Write([]byte{0x00, 0x01})
	require.NoError(t, err, "non-command writes are recorded only")
	assert.Len(t, mock.Written(), 2)
	assert.Equal(t, []byte{cmdBluetooth}, mock.WrittenCommands())
}
