package models

// AllTables returns a slice of all tables in the database.
func AllTables() []any {
	return []any{
		&LocalActor{}, &LocalFollow{},
		&ForeignActor{},
		&FollowerEdge{}, &Following{},
		&OutboxRecord{},
		&Quest{}, &Submission{}, &SubmissionReply{}, &QuestLike{},
		&Notification{},
		&DeliveryRequest{},
	}
}
