package filter

/*
Here the Env used in the access rules is defined.
Once this struct is fixed, it should not be changed, otherwise configured rules may not compile any more
(f.e. if properties are renamed etc.)
*/

type Participant struct {
	Id   string
	Nick string
	Role string
}

type Chat struct {
	Id        string
	Title     string
	CreatorId string
	Members   []string
	ClubId    string
	TeamId    string
	Closed    bool
}

type Env struct {
	Participant Participant
	Chat        Chat
}
