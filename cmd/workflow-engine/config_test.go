package main

import "testing"

func TestProfile_ChatModelProviderSwitch(t *testing.T) {
	cases := []struct {
		name    string
		p       profile
		wantNil bool
		wantErr bool
	}{
		{"none", profile{LLMProvider: "none"}, true, false},
		{"empty", profile{}, true, false},
		{"anthropic", profile{LLMProvider: "anthropic", AnthropicAPIKey: "sk-test"}, false, false},
		{"anthropic without key", profile{LLMProvider: "anthropic"}, true, false},
		{"openai", profile{LLMProvider: "openai", OpenAIAPIKey: "sk-test"}, false, false},
		{"google", profile{LLMProvider: "google", GoogleAPIKey: "test"}, false, false},
		{"unknown", profile{LLMProvider: "bedrock"}, true, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			model, err := tc.p.chatModel()
			if (err != nil) != tc.wantErr {
				t.Fatalf("err = %v, wantErr = %v", err, tc.wantErr)
			}
			if (model == nil) != tc.wantNil {
				t.Errorf("model = %v, wantNil = %v", model, tc.wantNil)
			}
		})
	}
}

func TestProfile_OpenStoreRejectsUnknownDriver(t *testing.T) {
	p := profile{StoreDriver: "oracle"}
	if _, err := p.openStore(t.Context()); err == nil {
		t.Fatal("expected an error for an unknown store driver")
	}
}

func TestProfile_OpenQueueRejectsUnknownDriver(t *testing.T) {
	p := profile{QueueDriver: "kafka"}
	if _, err := p.openQueue(); err == nil {
		t.Fatal("expected an error for an unknown queue driver")
	}
}
