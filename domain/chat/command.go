package chat

type FindOrCreateCommand struct {
	MemberA Identity `validate:"required"`
	MemberB Identity `validate:"required"`
}

type SubmitMessageCommand struct {
	ChatID   ChatID   `validate:"required"`
	SenderID Identity `validate:"required"`
	Text     string   `validate:"required"`
}

// RelayCommand asks the router to push an already persisted message again.
type RelayCommand struct {
	ChatID    ChatID    `validate:"required"`
	MessageID MessageID `validate:"required"`
	SenderID  Identity  `validate:"required"`
}

type SearchCommand struct {
	ChatID ChatID `validate:"required"`
	Query  string `validate:"required"`
	Limit  int    `validate:"gte=0,lte=100"`
}
