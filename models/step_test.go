package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChannel_Valid(t *testing.T) {
	for _, c := range AllChannels {
		assert.True(t, c.Valid(), string(c))
	}
	assert.False(t, Channel("carrier_pigeon").Valid())
	assert.False(t, Channel("").Valid())
}

func TestChannel_IsLinkedIn(t *testing.T) {
	assert.True(t, ChannelLinkedInConnection.IsLinkedIn())
	assert.True(t, ChannelLinkedInMessage.IsLinkedIn())
	assert.False(t, ChannelEmail.IsLinkedIn())
	assert.False(t, ChannelPhone.IsLinkedIn())
}

func TestChannel_IsTask(t *testing.T) {
	assert.True(t, ChannelPhone.IsTask())
	assert.True(t, ChannelVoicemail.IsTask())
	assert.False(t, ChannelEmail.IsTask())
	assert.False(t, ChannelSMS.IsTask())
}

func TestAccountTypeFor(t *testing.T) {
	assert.Equal(t, AccountTypeLinkedIn, AccountTypeFor(ChannelLinkedInConnection))
	assert.Equal(t, AccountTypeLinkedIn, AccountTypeFor(ChannelLinkedInMessage))
	assert.Equal(t, AccountTypeEmail, AccountTypeFor(ChannelEmail))
	assert.Equal(t, AccountTypeSMS, AccountTypeFor(ChannelSMS))
	assert.Equal(t, AccountTypeCall, AccountTypeFor(ChannelPhone))
	assert.Equal(t, AccountTypeCall, AccountTypeFor(ChannelVoicemail))
}
