package chat

import (
	"context"
	"strconv"

	"github.com/nachoal/kitgpt-go/llm"
)

// insertJob tracks the first write of a conversation
type insertJob struct {
	// dirty is set when the conversation changed while the insert ran
	dirty bool
	// final holds the last state of a conversation that was switched away
	// from before its insert finished
	final *snapshot
}

type snapshot struct {
	title    string
	messages []llm.Message
}

func conversationKey(id int64) string {
	return "conversation:" + strconv.FormatInt(id, 10)
}

// persistLocked mirrors the conversation to the repository. The first write
// is an insert; later ones are coalesced updates.
func (s *Session) persistLocked() {
	if s.repo == nil || s.closed {
		return
	}
	if s.conversationID != 0 {
		s.scheduleUpdateLocked()
		return
	}
	if s.inserting != nil {
		s.inserting.dirty = true
		return
	}
	if s.store.len() == 0 {
		return
	}

	job := &insertJob{}
	s.inserting = job
	snap := s.snapshotLocked()

	s.wg.Add(1)
	go s.runInsert(job, snap)
}

func (s *Session) runInsert(job *insertJob, snap snapshot) {
	defer s.wg.Done()

	id, err := s.repo.Insert(context.Background(), snap.title, snap.messages)

	s.lock()
	if s.inserting != job {
		// The conversation was replaced while inserting.
		final := job.final
		s.unlock()
		if err != nil {
			s.logger.Error().Err(err).Bool("changes_lost", final != nil).Msg("failed to save conversation")
			return
		}
		if final != nil {
			s.write(id, *final)
		}
		return
	}
	defer s.unlock()

	s.inserting = nil
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to save conversation")
		return
	}
	s.conversationID = id
	s.logger.Debug().Int64("id", id).Msg("conversation created")
	if job.dirty {
		s.scheduleUpdateLocked()
	}
}

// scheduleUpdateLocked queues an update. The state is read when the write
// runs, and the write is skipped if the conversation changed by then.
func (s *Session) scheduleUpdateLocked() {
	id, epoch := s.conversationID, s.epoch
	s.unsaved = true
	s.queue.Schedule(conversationKey(id), func() {
		s.mu.Lock()
		if s.epoch != epoch || s.conversationID != id {
			s.mu.Unlock()
			return
		}
		s.unsaved = false
		snap := s.snapshotLocked()
		s.mu.Unlock()

		s.write(id, snap)
	})
}

// finalWriteLocked captures the state of the conversation being left. A
// stored conversation gets a write queued under its key, which the caller
// flushes after unlocking; one still being inserted gets the state attached
// to the insert.
func (s *Session) finalWriteLocked() string {
	if s.repo == nil {
		return ""
	}
	if s.inserting != nil {
		if s.inserting.dirty {
			snap := s.snapshotLocked()
			s.inserting.final = &snap
		}
		s.inserting = nil
		return ""
	}
	if s.conversationID == 0 || !s.unsaved {
		return ""
	}
	s.unsaved = false

	id, snap := s.conversationID, s.snapshotLocked()
	key := conversationKey(id)
	s.queue.Schedule(key, func() { s.write(id, snap) })
	return key
}

// flushFinal writes the state captured by finalWriteLocked
func (s *Session) flushFinal(key string) {
	if key != "" {
		s.queue.Flush(key)
	}
}

func (s *Session) snapshotLocked() snapshot {
	return snapshot{title: s.title, messages: s.store.snapshot()}
}

func (s *Session) write(id int64, snap snapshot) {
	if err := s.repo.Update(context.Background(), id, snap.title, snap.messages); err != nil {
		s.logger.Error().Err(err).Int64("id", id).Msg("failed to save conversation")
	}
}
