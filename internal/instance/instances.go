package instance

type Instances struct {
	Mongo      Mongo
	Users      Users
	Presences  Presences
	Social     Social
	Prometheus Prometheus
}
