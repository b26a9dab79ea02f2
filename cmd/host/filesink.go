package main

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"hash"
	"os"
	"path/filepath"
	"sync"

	"github.com/lanmirror/lanmirror/internal/logx"
	"github.com/lanmirror/lanmirror/internal/protocol"
)

// maxTransferSize caps an accepted file transfer.
const maxTransferSize = 2 << 30 // 2 GiB

var (
	errSizeOutOfRange    = errors.New("announced size out of range")
	errDuplicateTransfer = errors.New("transfer id already active")
)

// fileSink receives incoming file transfers into a downloads
// directory. Chunks arrive in order per transfer on the channel's read
// loop, so no reassembly buffering is needed.
type fileSink struct {
	dir    string
	sender interface {
		Send(protocol.Message) error
	}

	mu     sync.Mutex
	active map[string]*transfer
}

type transfer struct {
	name    string
	file    *os.File
	hash    hash.Hash
	written int64
	size    int64
}

func newFileSink(dir string, sender interface{ Send(protocol.Message) error }) *fileSink {
	return &fileSink{
		dir:    dir,
		sender: sender,
		active: make(map[string]*transfer),
	}
}

func (fs *fileSink) onRequest(msg protocol.Message) {
	req := msg.(*protocol.FileTransferRequest)

	resp := &protocol.FileTransferResponse{TransferID: req.TransferID, Accepted: true}
	if err := fs.open(req); err != nil {
		logx.Warnf("File transfer %s rejected: %v", req.TransferID, err)
		resp.Accepted = false
		resp.Reason = err.Error()
	} else {
		logx.Infof("Receiving %s (%d bytes)", req.Name, req.Size)
	}
	if err := fs.sender.Send(resp); err != nil {
		logx.Warnf("send transfer response: %v", err)
	}
}

func (fs *fileSink) open(req *protocol.FileTransferRequest) error {
	if req.Size < 0 || req.Size > maxTransferSize {
		return errSizeOutOfRange
	}
	// Strip any directory components from the announced name.
	name := filepath.Base(req.Name)
	if name == "." || name == string(filepath.Separator) {
		name = req.TransferID
	}
	if err := os.MkdirAll(fs.dir, 0700); err != nil {
		return err
	}
	f, err := os.CreateTemp(fs.dir, name+".partial-*")
	if err != nil {
		return err
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()
	if _, exists := fs.active[req.TransferID]; exists {
		f.Close()           //nolint:errcheck
		os.Remove(f.Name()) //nolint:errcheck
		return errDuplicateTransfer
	}
	fs.active[req.TransferID] = &transfer{
		name: name,
		file: f,
		hash: sha256.New(),
		size: req.Size,
	}
	return nil
}

func (fs *fileSink) onChunk(msg protocol.Message) {
	chunk := msg.(*protocol.FileChunk)

	fs.mu.Lock()
	tr := fs.active[chunk.TransferID]
	fs.mu.Unlock()
	if tr == nil {
		logx.Debugf("chunk for unknown transfer %s dropped", chunk.TransferID)
		return
	}

	if tr.written+int64(len(chunk.Data)) > tr.size {
		logx.Warnf("transfer %s exceeds its announced size, aborting", chunk.TransferID)
		fs.abort(chunk.TransferID)
		return
	}
	if _, err := tr.file.Write(chunk.Data); err != nil {
		logx.Warnf("transfer %s write failed: %v", chunk.TransferID, err)
		fs.abort(chunk.TransferID)
		return
	}
	tr.hash.Write(chunk.Data) //nolint:errcheck
	tr.written += int64(len(chunk.Data))
}

func (fs *fileSink) onComplete(msg protocol.Message) {
	done := msg.(*protocol.FileTransferComplete)

	fs.mu.Lock()
	tr := fs.active[done.TransferID]
	delete(fs.active, done.TransferID)
	fs.mu.Unlock()
	if tr == nil {
		return
	}

	sum := hex.EncodeToString(tr.hash.Sum(nil))
	if done.Checksum != "" && done.Checksum != sum {
		logx.Warnf("transfer %s checksum mismatch, discarding", done.TransferID)
		tr.file.Close()           //nolint:errcheck
		os.Remove(tr.file.Name()) //nolint:errcheck
		return
	}

	tmp := tr.file.Name()
	if err := tr.file.Close(); err != nil {
		logx.Warnf("transfer %s close failed: %v", done.TransferID, err)
		return
	}
	final := filepath.Join(fs.dir, tr.name)
	if err := os.Rename(tmp, final); err != nil {
		logx.Warnf("transfer %s rename failed: %v", done.TransferID, err)
		return
	}
	logx.Infof("Received %s (%d bytes)", final, tr.written)
}

func (fs *fileSink) abort(transferID string) {
	fs.mu.Lock()
	tr := fs.active[transferID]
	delete(fs.active, transferID)
	fs.mu.Unlock()
	if tr != nil {
		tr.file.Close()           //nolint:errcheck
		os.Remove(tr.file.Name()) //nolint:errcheck
	}
}
