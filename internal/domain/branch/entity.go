package branch

type Branch struct {
	ID       string
	Name     string
	Location string
}
