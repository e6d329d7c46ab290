package protocol

import (
	"encoding/json"
	"fmt"
)

// Encode 將事件與負載編碼為信封，payload 可為 nil
func Encode(event string, payload any) ([]byte, error) {
	if event == "" {
		return nil, fmt.Errorf("編碼信封缺少事件名稱")
	}

	env := Envelope{Event: event}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("編碼 %s 負載失敗: %w", event, err)
		}
		env.Data = data
	}
	return json.Marshal(env)
}

// MustEncode 同 Encode，失敗時 panic；只用於固定結構的負載
func MustEncode(event string, payload any) []byte {
	b, err := Encode(event, payload)
	if err != nil {
		panic(err)
	}
	return b
}

// DecodeEnvelope 解碼信封
func DecodeEnvelope(b []byte) (Envelope, error) {
	if len(b) == 0 {
		return Envelope{}, fmt.Errorf("空消息")
	}
	var env Envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return Envelope{}, fmt.Errorf("解析信封失敗: %w", err)
	}
	if env.Event == "" {
		return Envelope{}, fmt.Errorf("信封缺少事件名稱")
	}
	return env, nil
}

// DecodeData 解碼信封負載
func DecodeData[T any](env Envelope) (T, error) {
	var out T
	if len(env.Data) == 0 {
		return out, fmt.Errorf("%s 缺少負載", env.Event)
	}
	if err := json.Unmarshal(env.Data, &out); err != nil {
		return out, fmt.Errorf("解析 %s 負載失敗: %w", env.Event, err)
	}
	return out, nil
}
