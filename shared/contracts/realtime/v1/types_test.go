package v1

import "testing"

func TestEnvelopeValidate(t *testing.T) {
	t.Parallel()

	cases := []struct {
		env     Envelope
		wantErr bool
	}{
		{Envelope{V: Version, Type: TypePing}, false},
		{Envelope{V: Version, Type: TypeTyping}, false},
		{Envelope{V: "", Type: TypePing}, true},
		{Envelope{V: "v2", Type: TypePing}, true},
		{Envelope{V: Version, Type: ""}, true},
		{Envelope{V: Version, Type: TypeNewMessage}, true},
		{Envelope{V: Version, Type: "conversation_join"}, true},
	}
	for _, tc := range cases {
		if err := tc.env.Validate(); (err != nil) != tc.wantErr {
			t.Fatalf("Validate(%+v) err=%v wantErr=%v", tc.env, err, tc.wantErr)
		}
	}
}
