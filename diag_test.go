package replica

import "testing"

func TestDiagStatePublish(t *testing.T) {
	d := &diagState{}

	if got := d.snapshot(); got != (Snapshot{}) {
		t.Fatalf("fresh state = %+v", got)
	}

	want := Snapshot{Role: "authority", ClientID: 1, Conns: 3, Entities: 7, Time: 1.5}
	d.publish(want)

	if got := d.snapshot(); got != want {
		t.Fatalf("snapshot = %+v, want %+v", got, want)
	}
}

func TestEnginePublishesSnapshots(t *testing.T) {
	a, _ := testAuthority(t)
	c := &fakeConn{label: "a"}
	id := joinFake(t, a, c)

	inject(t, a, c, Msg{Type: MsgCreate, ID: PackID(id, 0), State: &testState{}})

	snap := a.diag.snapshot()
	if snap.Role != "authority" || snap.Conns != 1 || snap.Entities != 1 {
		t.Fatalf("snapshot = %+v", snap)
	}
}
