package config

type WorkerKeyStruct struct {
	PersistAnswersQueue     string
	PersistViolationsQueue  string
	PersistLeaderboardQueue string
}

var WorkerKey = &WorkerKeyStruct{
	PersistAnswersQueue:     "persist_answers_queue",
	PersistViolationsQueue:  "persist_violations_queue",
	PersistLeaderboardQueue: "persist_leaderboard_queue",
}
