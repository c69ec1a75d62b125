package synch

import (
	"log"

	"github.com/sarchlab/nachosim/thread"
)

// A ReadWriteLock admits many readers or one writer. Readers hold the
// exclusive access as a group: the first reader in takes it and the last one
// out gives it back. Readers are preferred, so a steady stream of readers
// starves writers.
type ReadWriteLock struct {
	name      string
	readers   int
	mutex     *Lock
	exclusive *Semaphore
	writer    *thread.Thread
	k         Kernel
}

// NewReadWriteLock creates a free reader-writer lock.
func NewReadWriteLock(k Kernel, name string) *ReadWriteLock {
	return &ReadWriteLock{
		name:      name,
		mutex:     NewLock(k, name+" readers"),
		exclusive: NewSemaphore(k, name+" exclusive", 1),
		k:         k,
	}
}

// Readers returns the number of threads holding read access.
func (l *ReadWriteLock) Readers() int {
	return l.readers
}

// Writer returns the thread holding write access, or nil.
func (l *ReadWriteLock) Writer() *thread.Thread {
	return l.writer
}

// ReaderAcquire takes read access.
func (l *ReadWriteLock) ReaderAcquire() {
	l.mutex.Acquire()

	l.readers++
	if l.readers == 1 {
		l.exclusive.P()
	}

	l.mutex.Release()
}

// ReaderRelease gives up read access.
func (l *ReadWriteLock) ReaderRelease() {
	l.mutex.Acquire()

	if l.readers == 0 {
		log.Panicf("reader release on %s without readers", l.name)
	}

	l.readers--
	if l.readers == 0 {
		l.exclusive.V()
	}

	l.mutex.Release()
}

// WriterAcquire takes write access.
func (l *ReadWriteLock) WriterAcquire() {
	l.exclusive.P()
	l.writer = l.k.CurrentThread()
}

// WriterRelease gives up write access. The caller must be the writer.
func (l *ReadWriteLock) WriterRelease() {
	if l.writer == nil || l.writer != l.k.CurrentThread() {
		log.Panicf("writer release on %s by %s, which is not the writer",
			l.name, l.k.CurrentThread())
	}

	l.writer = nil
	l.exclusive.V()
}
