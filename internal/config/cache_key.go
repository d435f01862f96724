package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// StudentScratchAnswersKey returns the key of the scratch answer slot for one student's attempt.
func (r *CacheKeyStruct) StudentScratchAnswersKey(examID string, studentID int) string {
	return fmt.Sprintf("scratch:student:%d:exam:%s:answers", studentID, examID)
}

// StudentExamSessionStartKey returns the cache key for a student's exam session start record
func (r *CacheKeyStruct) StudentExamSessionStartKey(examID string, studentID int) string {
	return fmt.Sprintf("student:%d:exam:%s:session_start", studentID, examID)
}

// ExamDefinitionKey returns the cache key for the full exam definition (with answer key).
// Never sent to students.
func (r *CacheKeyStruct) ExamDefinitionKey(examID string) string {
	return fmt.Sprintf("exam:%s:definition", examID)
}

// ExamMonitorChannel returns the Redis PubSub channel name for an exam monitor
func (r *CacheKeyStruct) ExamMonitorChannel(examID string) string {
	return fmt.Sprintf("exam:%s:monitor", examID)
}

var CacheKey = NewCacheKeyStruct()
